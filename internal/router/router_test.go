package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/counter"
	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/queue"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/uploads"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type envelope struct {
	Status       string          `json:"status"`
	Payload      json.RawMessage `json:"payload"`
	ErrorCode    int             `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

func newApp(t *testing.T, mutate func(cfg *config.Config), emitter *events.Emitter) (*fiber.App, store.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.Secrets = []string{testSecret}
	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewMemoryStore()
	files, err := uploads.NewStoreWithFs(afero.NewMemMapFs(), cfg.Uploads)
	require.NoError(t, err)

	app := New(logging.NewNop(), Dependencies{
		Store:   st,
		Counter: counter.NewStoreCounter(st),
		Files:   files,
		Emitter: emitter,
	}, *cfg)
	t.Cleanup(func() { _ = app.Shutdown() })
	return app, st
}

func call(t *testing.T, app *fiber.App, method, path string, body interface{}, authed bool) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", testSecret)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func object(t *testing.T, env envelope) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &m))
	return m
}

// Activate code 42, submit, resubmit, close, submit again.
func TestScenario_Code42(t *testing.T) {
	app, st := newApp(t, nil, nil)

	status, env := call(t, app, "POST", "/v1/surveys/draft", map[string]interface{}{"id": "s-42", "code": 42, "title": "Wells"}, true)
	require.Equal(t, 200, status, env.ErrorMessage)

	status, env = call(t, app, "POST", "/v1/surveys/active", map[string]interface{}{"id": "s-42"}, true)
	require.Equal(t, 200, status, env.ErrorMessage)
	activated := object(t, env)
	assert.Equal(t, "s-42", activated["id"])
	assert.NotEmpty(t, activated["start_date"])

	submission := map[string]interface{}{
		"survey_id":       "s-42",
		"installation_id": 7,
		"timestamp":       1000,
		"answers":         []map[string]interface{}{{"id": 1, "value": "x"}},
	}
	status, env = call(t, app, "POST", "/v1/responses", submission, true)
	require.Equal(t, 200, status, env.ErrorMessage)
	firstID := object(t, env)["id"]
	require.NotEmpty(t, firstID)

	status, env = call(t, app, "POST", "/v1/responses", submission, true)
	require.Equal(t, 200, status, env.ErrorMessage)
	assert.Equal(t, firstID, object(t, env)["id"])

	stored, err := st.ListResponses(context.Background(), "s-42", 2)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	status, env = call(t, app, "POST", "/v1/surveys/42/close", nil, true)
	require.Equal(t, 200, status, env.ErrorMessage)
	assert.Equal(t, "s-42", object(t, env)["id"])

	submission["timestamp"] = 2000
	status, env = call(t, app, "POST", "/v1/responses", submission, true)
	assert.Equal(t, 403, status)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, 14, env.ErrorCode)
}

func TestActivatedSurveySurvivesLaterRequests(t *testing.T) {
	app, st := newApp(t, nil, nil)

	status, env := call(t, app, "POST", "/v1/surveys/active",
		map[string]interface{}{"id": "s1", "code": 9, "title": "Rivers"}, true)
	require.Equal(t, 200, status, env.ErrorMessage)

	for i := 0; i < 100; i++ {
		status, _ = call(t, app, "GET", "/v1/surveys/xyzxyz", nil, false)
		require.Equal(t, 400, status)
		status, _ = call(t, app, "GET", "/v1/surveys/9", nil, false)
		require.Equal(t, 200, status)
		status, _ = call(t, app, "POST", "/v1/responses", map[string]interface{}{
			"survey_id":       "zzzzzzzzzzzz",
			"installation_id": i + 1,
			"timestamp":       i,
		}, true)
		require.Equal(t, 404, status)
	}

	sv, err := st.GetSurvey(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sv.ID)
	assert.Equal(t, "Rivers", sv.Title)
	assert.Equal(t, models.SurveyStatusActive, sv.Status)
}

func TestAuth_MutatingRequestsNeedSecret(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	status, env := call(t, app, "POST", "/v1/installations", nil, false)
	assert.Equal(t, 401, status)
	assert.Equal(t, 11, env.ErrorCode)

	status, env = call(t, app, "GET", "/v1/surveys", nil, false)
	assert.Equal(t, 200, status)
	var surveys []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &surveys))
	assert.Empty(t, surveys)

	status, env = call(t, app, "POST", "/v1/installations", nil, true)
	require.Equal(t, 201, status)
	assert.EqualValues(t, 1, object(t, env)["installation_id"])
}

func TestRegistrationRateLimit(t *testing.T) {
	app, _ := newApp(t, func(cfg *config.Config) {
		cfg.Server.RegisterPerMinute = 2
	}, nil)

	for i := 0; i < 2; i++ {
		status, _ := call(t, app, "POST", "/v1/installations", nil, true)
		require.Equal(t, 201, status)
	}
	status, env := call(t, app, "POST", "/v1/installations", nil, true)
	assert.Equal(t, 429, status)
	assert.Equal(t, 10, env.ErrorCode)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	status, env := call(t, app, "GET", "/v1/nothing-here", nil, false)
	assert.Equal(t, 404, status)
	assert.Equal(t, 10, env.ErrorCode)
}

func TestCORSPreflight(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	req := httptest.NewRequest("OPTIONS", "/v1/responses", nil)
	req.Header.Set("Origin", "https://field.example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEventsArePublished(t *testing.T) {
	q, err := queue.NewQueue(config.QueueConfig{Type: "memory"})
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	received := make(chan *events.Event, 8)
	err = q.Subscribe(events.Subject("fieldsurvey", events.InstallationRegistered), func(data []byte) error {
		evt, err := events.Decode(data)
		if err != nil {
			return err
		}
		received <- evt
		return nil
	})
	require.NoError(t, err)

	app, _ := newApp(t, nil, events.NewEmitter(q, "fieldsurvey", logging.NewNop()))
	status, _ := call(t, app, "POST", "/v1/installations", nil, true)
	require.Equal(t, 201, status)

	select {
	case evt := <-received:
		assert.Equal(t, events.InstallationRegistered, evt.Type)
		assert.NotEmpty(t, evt.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("installation.registered was not published")
	}
}
