package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/queue"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	only := flag.String("types", "", "Comma separated event types to follow (default: all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	types, err := selectTypes(*only)
	if err != nil {
		logger.Fatal("Invalid -types", "error", err)
	}

	logger.Info("Connecting to Queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
	q, err := queue.NewQueue(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to connect to Queue", "error", err)
	}
	defer func() { _ = q.Close() }()

	for _, typ := range types {
		subject := events.Subject(cfg.Events.SubjectPrefix, typ)
		if err := q.Subscribe(subject, printEvent(logger)); err != nil {
			logger.Fatal("Failed to subscribe", "subject", subject, "error", err)
		}
		logger.Info("Following", "subject", subject)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
}

func selectTypes(list string) ([]events.Type, error) {
	if strings.TrimSpace(list) == "" {
		return events.AllTypes(), nil
	}

	known := make(map[events.Type]bool)
	for _, typ := range events.AllTypes() {
		known[typ] = true
	}

	var types []events.Type
	for _, name := range strings.Split(list, ",") {
		typ := events.Type(strings.TrimSpace(name))
		if !known[typ] {
			return nil, fmt.Errorf("unknown event type %q", typ)
		}
		types = append(types, typ)
	}
	return types, nil
}

func printEvent(logger *logging.Logger) queue.MessageHandler {
	return func(data []byte) error {
		evt, err := events.Decode(data)
		if err != nil {
			logger.Warn("Undecodable event", "error", err, "bytes", len(data))
			return nil
		}
		logger.Info(string(evt.Type),
			"event_id", evt.ID,
			"occurred_at", evt.OccurredAt,
			"request_id", evt.RequestID,
			"data", evt.Data)
		return nil
	}
}
