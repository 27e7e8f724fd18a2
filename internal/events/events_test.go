package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, messages []queue.BatchMessage) (int, error) {
	for i, m := range messages {
		if err := p.Publish(ctx, m.Subject, m.Data); err != nil {
			return i, err
		}
	}
	return len(messages), nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestEmitter_Emit(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "fieldsurvey", logging.NewNop())

	ctx := logging.WithRequestID(context.Background(), "req-9")
	e.Emit(ctx, ResponseSubmitted, map[string]interface{}{"id": "r-1"})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "fieldsurvey.response.submitted", pub.subjects[0])

	evt, err := Decode(pub.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, ResponseSubmitted, evt.Type)
	assert.Equal(t, "req-9", evt.RequestID)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "r-1", evt.Data.(map[string]interface{})["id"])
}

func TestEmitter_PublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	e := NewEmitter(pub, "", logging.NewNop())

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), SurveyClosed, nil)
	})
}

func TestEmitter_Nil(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), SurveyClosed, nil)
		e.EmitAll(context.Background(), ReadingsSubmitted, []interface{}{1})
	})
}

func TestEmitter_EmitAll(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "fs", logging.NewNop())

	e.EmitAll(context.Background(), ReadingsSubmitted, []interface{}{
		map[string]interface{}{"survey_id": "a", "count": 2},
		map[string]interface{}{"survey_id": "b", "count": 1},
	})
	e.EmitAll(context.Background(), ReadingsSubmitted, nil)

	require.Len(t, pub.subjects, 2)
	assert.Equal(t, []string{"fs.readings.submitted", "fs.readings.submitted"}, pub.subjects)

	first, err := Decode(pub.payloads[0])
	require.NoError(t, err)
	second, err := Decode(pub.payloads[1])
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "b", second.Data.(map[string]interface{})["survey_id"])
}

func TestEmitter_CancelledRequestStillPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, "p", logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Emit(ctx, SurveyActivated, nil)

	assert.Len(t, pub.subjects, 1)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "survey.closed", Subject("", SurveyClosed))
	assert.Equal(t, "x.survey.closed", Subject("x", SurveyClosed))
	assert.Len(t, AllTypes(), 6)
}

func TestEmitter_OverMemoryQueue(t *testing.T) {
	q, err := queue.NewQueue(queueConfigMemory())
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	got := make(chan *Event, 1)
	require.NoError(t, q.Subscribe(Subject("fs", InstallationRegistered), func(data []byte) error {
		evt, err := Decode(data)
		if err != nil {
			return err
		}
		got <- evt
		return nil
	}))

	NewEmitter(q, "fs", logging.NewNop()).Emit(context.Background(), InstallationRegistered, map[string]int64{"installation_id": 3})

	evt := <-got
	assert.Equal(t, InstallationRegistered, evt.Type)
	assert.EqualValues(t, 3, evt.Data.(map[string]interface{})["installation_id"])
}

func queueConfigMemory() config.QueueConfig {
	return config.QueueConfig{Type: "memory"}
}
