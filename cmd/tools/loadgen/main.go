package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

// LoadConfig holds load generator configuration
type LoadConfig struct {
	BaseURL       string
	SurveyID      string
	SurveyCode    int
	Installations int
	Duration      time.Duration
	SubmitWorkers int
	ReadWorkers   int
	RetryRatio    float64 // share of submissions sent twice, as a flaky client would
	ReadInterval  time.Duration
	Secret        string
	Output        string
	HTTPClient    *http.Client
}

// Metrics holds load metrics
type Metrics struct {
	SubmitLatencies []float64
	ReadLatencies   []float64
	SubmitErrors    int64
	ReadErrors      int64
	SubmitSuccess   int64
	ReadSuccess     int64
	Retries         int64
	DedupMismatches int64
	FirstError      string
	mu              sync.Mutex
}

// Result represents the outcome for one operation
type Result struct {
	Operation  string
	TotalOps   int64
	SuccessOps int64
	ErrorOps   int64
	Duration   time.Duration
	Throughput float64 // ops/sec
	AvgLatency float64 // ms
	MinLatency float64 // ms
	MaxLatency float64 // ms
	P50Latency float64 // ms
	P95Latency float64 // ms
	P99Latency float64 // ms
}

type envelope struct {
	Status       string                 `json:"status"`
	Payload      map[string]interface{} `json:"payload"`
	ErrorCode    int                    `json:"error_code"`
	ErrorMessage string                 `json:"error_message"`
}

func main() {
	cfg := LoadConfig{}
	flag.StringVar(&cfg.BaseURL, "url", "http://127.0.0.1:5555", "Base URL of the API")
	flag.StringVar(&cfg.SurveyID, "survey-id", "loadgen-survey", "Survey id to activate and fill")
	flag.IntVar(&cfg.SurveyCode, "code", 9000, "Survey code")
	flag.IntVar(&cfg.Installations, "installations", 50, "Number of installations to register")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Run duration")
	flag.IntVar(&cfg.SubmitWorkers, "submit-workers", 10, "Concurrent response submitters")
	flag.IntVar(&cfg.ReadWorkers, "read-workers", 2, "Concurrent response readers")
	flag.Float64Var(&cfg.RetryRatio, "retry-ratio", 0.1, "Fraction of submissions resent to exercise dedup")
	flag.DurationVar(&cfg.ReadInterval, "read-interval", 250*time.Millisecond, "Interval between reads per worker")
	flag.StringVar(&cfg.Secret, "secret", "", "Shared secret for mutating requests")
	flag.StringVar(&cfg.Output, "out", "", "Write results to this file")
	flag.Parse()

	cfg.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Printf("=== fieldsurvey load generator ===\n")
	fmt.Printf("  URL: %s\n", cfg.BaseURL)
	fmt.Printf("  Survey: %s (code %d)\n", cfg.SurveyID, cfg.SurveyCode)
	fmt.Printf("  Installations: %d\n", cfg.Installations)
	fmt.Printf("  Duration: %s\n", cfg.Duration)
	fmt.Printf("  Submit Workers: %d\n", cfg.SubmitWorkers)
	fmt.Printf("  Read Workers: %d\n", cfg.ReadWorkers)
	fmt.Printf("  Retry Ratio: %.2f\n\n", cfg.RetryRatio)

	if err := activateSurvey(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to activate survey: %v\n", err)
		os.Exit(1)
	}

	installations, err := registerInstallations(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register installations: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Registered %d installations (%d..%d)\n\n", len(installations), installations[0], installations[len(installations)-1])

	metrics := run(cfg, installations)

	submit := calculateResult("Submit", metrics.SubmitLatencies, metrics.SubmitSuccess, metrics.SubmitErrors, cfg.Duration)
	read := calculateResult("Read", metrics.ReadLatencies, metrics.ReadSuccess, metrics.ReadErrors, cfg.Duration)

	var out bytes.Buffer
	writeResult(&out, submit)
	fmt.Fprintf(&out, "Resubmissions:    %d (dedup mismatches: %d)\n\n", metrics.Retries, metrics.DedupMismatches)
	writeResult(&out, read)
	if metrics.FirstError != "" {
		fmt.Fprintf(&out, "\nFirst Error: %s\n", metrics.FirstError)
	}

	fmt.Printf("\n=== Results ===\n\n%s", out.String())
	if cfg.Output != "" {
		if err := os.WriteFile(cfg.Output, out.Bytes(), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results: %v\n", err)
		} else {
			fmt.Printf("\nResults saved to: %s\n", cfg.Output)
		}
	}
	if metrics.DedupMismatches > 0 {
		os.Exit(2)
	}
}

func activateSurvey(cfg LoadConfig) error {
	payload := map[string]interface{}{
		"id":    cfg.SurveyID,
		"code":  cfg.SurveyCode,
		"title": "Load generator survey",
		"inputs": []map[string]interface{}{
			{"id": 1, "type": "text"},
			{"id": 2, "type": "number"},
		},
	}
	_, err := request(cfg, "POST", "/v1/surveys/active", payload)
	return err
}

func registerInstallations(cfg LoadConfig) ([]int64, error) {
	if cfg.Installations <= 0 {
		return nil, fmt.Errorf("need at least one installation")
	}
	ids := make([]int64, 0, cfg.Installations)
	for i := 0; i < cfg.Installations; i++ {
		env, err := request(cfg, "POST", "/v1/installations", nil)
		if err != nil {
			return nil, err
		}
		id, ok := env.Payload["installation_id"].(float64)
		if !ok {
			return nil, fmt.Errorf("unexpected registration payload %v", env.Payload)
		}
		ids = append(ids, int64(id))
	}
	return ids, nil
}

func run(cfg LoadConfig, installations []int64) *Metrics {
	metrics := &Metrics{
		SubmitLatencies: make([]float64, 0, 10000),
		ReadLatencies:   make([]float64, 0, 1000),
	}

	var wg sync.WaitGroup
	stopCh := make(chan struct{})
	startTime := time.Now()
	var seq int64

	for i := 0; i < cfg.SubmitWorkers; i++ {
		wg.Add(1)
		go submitWorker(i, cfg, installations, &seq, metrics, stopCh, &wg)
	}
	for i := 0; i < cfg.ReadWorkers; i++ {
		wg.Add(1)
		go readWorker(cfg, metrics, stopCh, &wg)
	}

	go progressReporter(metrics, cfg.Duration, startTime)

	time.Sleep(cfg.Duration)
	close(stopCh)
	wg.Wait()

	return metrics
}

func submitWorker(id int, cfg LoadConfig, installations []int64, seq *int64, metrics *Metrics, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		// timestamps only need to be unique per installation
		ts := time.Now().UnixMilli()*1000 + atomic.AddInt64(seq, 1)%1000
		payload := map[string]interface{}{
			"survey_id":       cfg.SurveyID,
			"installation_id": installations[rng.Intn(len(installations))],
			"timestamp":       ts,
			"answers": []map[string]interface{}{
				{"id": 1, "value": fmt.Sprintf("note-%d", ts)},
				{"id": 2, "value": fmt.Sprintf("%.2f", rng.Float64()*100)},
			},
			"locationstamp": map[string]interface{}{
				"lat": 48 + rng.Float64(),
				"lon": 2 + rng.Float64(),
			},
		}

		firstID, ok := timedSubmit(cfg, payload, metrics)
		if !ok || rng.Float64() >= cfg.RetryRatio {
			continue
		}

		atomic.AddInt64(&metrics.Retries, 1)
		if againID, ok := timedSubmit(cfg, payload, metrics); ok && againID != firstID {
			atomic.AddInt64(&metrics.DedupMismatches, 1)
		}
	}
}

func timedSubmit(cfg LoadConfig, payload interface{}, metrics *Metrics) (string, bool) {
	start := time.Now()
	env, err := request(cfg, "POST", "/v1/responses", payload)
	latency := time.Since(start).Seconds() * 1000 // ms

	metrics.mu.Lock()
	metrics.SubmitLatencies = append(metrics.SubmitLatencies, latency)
	metrics.mu.Unlock()

	if err != nil {
		atomic.AddInt64(&metrics.SubmitErrors, 1)
		metrics.recordError(err)
		return "", false
	}
	atomic.AddInt64(&metrics.SubmitSuccess, 1)
	id, _ := env.Payload["id"].(string)
	return id, true
}

func readWorker(cfg LoadConfig, metrics *Metrics, stopCh chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(cfg.ReadInterval)
	defer ticker.Stop()

	path := fmt.Sprintf("/v1/surveys/%d/responses", cfg.SurveyCode)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			start := time.Now()
			_, err := request(cfg, "GET", path, nil)
			latency := time.Since(start).Seconds() * 1000 // ms

			metrics.mu.Lock()
			metrics.ReadLatencies = append(metrics.ReadLatencies, latency)
			metrics.mu.Unlock()

			if err != nil {
				atomic.AddInt64(&metrics.ReadErrors, 1)
				metrics.recordError(err)
			} else {
				atomic.AddInt64(&metrics.ReadSuccess, 1)
			}
		}
	}
}

func (m *Metrics) recordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FirstError == "" {
		m.FirstError = err.Error()
	}
}

func progressReporter(metrics *Metrics, duration time.Duration, startTime time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		elapsed := time.Since(startTime)
		if elapsed >= duration {
			return
		}

		submits := atomic.LoadInt64(&metrics.SubmitSuccess)
		reads := atomic.LoadInt64(&metrics.ReadSuccess)
		fmt.Printf("[%s remaining] Submits: %d (%.0f/s, %d errors) | Reads: %d (%d errors)\n",
			(duration - elapsed).Round(time.Second),
			submits, float64(submits)/elapsed.Seconds(), atomic.LoadInt64(&metrics.SubmitErrors),
			reads, atomic.LoadInt64(&metrics.ReadErrors))
	}
}

func request(cfg LoadConfig, method, path string, data interface{}) (*envelope, error) {
	var body io.Reader
	if data != nil {
		raw, err := sonic.Marshal(data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Secret != "" {
		req.Header.Set("X-API-Key", cfg.Secret)
	}

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("HTTP %d: undecodable body", resp.StatusCode)
	}
	if resp.StatusCode >= 400 || env.Status != "success" {
		return &env, fmt.Errorf("HTTP %d: error %d: %s", resp.StatusCode, env.ErrorCode, env.ErrorMessage)
	}
	return &env, nil
}

func calculateResult(operation string, latencies []float64, success, errors int64, duration time.Duration) Result {
	result := Result{
		Operation:  operation,
		TotalOps:   success + errors,
		SuccessOps: success,
		ErrorOps:   errors,
		Duration:   duration,
	}
	if len(latencies) == 0 {
		return result
	}

	sort.Float64s(latencies)
	result.Throughput = float64(success) / duration.Seconds()
	result.MinLatency = latencies[0]
	result.MaxLatency = latencies[len(latencies)-1]
	result.P50Latency = percentile(latencies, 50)
	result.P95Latency = percentile(latencies, 95)
	result.P99Latency = percentile(latencies, 99)

	var sum float64
	for _, lat := range latencies {
		sum += lat
	}
	result.AvgLatency = sum / float64(len(latencies))
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(math.Ceil(float64(len(sorted)) * p / 100.0))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func writeResult(w io.Writer, r Result) {
	share := func(n int64) float64 {
		if r.TotalOps == 0 {
			return 0
		}
		return float64(n) / float64(r.TotalOps) * 100
	}
	_, _ = fmt.Fprintf(w, "=== %s Operations ===\n", r.Operation)
	_, _ = fmt.Fprintf(w, "Total Operations: %d\n", r.TotalOps)
	_, _ = fmt.Fprintf(w, "Success:          %d (%.2f%%)\n", r.SuccessOps, share(r.SuccessOps))
	_, _ = fmt.Fprintf(w, "Errors:           %d (%.2f%%)\n", r.ErrorOps, share(r.ErrorOps))
	_, _ = fmt.Fprintf(w, "Throughput:       %.2f ops/sec\n", r.Throughput)
	_, _ = fmt.Fprintf(w, "Latency (ms):     min %.2f avg %.2f p50 %.2f p95 %.2f p99 %.2f max %.2f\n",
		r.MinLatency, r.AvgLatency, r.P50Latency, r.P95Latency, r.P99Latency, r.MaxLatency)
}
