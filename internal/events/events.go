package events

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/queue"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/google/uuid"
)

// Type names a domain event
type Type string

const (
	SurveyActivated        Type = "survey.activated"
	SurveyClosed           Type = "survey.closed"
	ResponseSubmitted      Type = "response.submitted"
	ResponseAttached       Type = "response.attached"
	ReadingsSubmitted      Type = "readings.submitted"
	InstallationRegistered Type = "installation.registered"
)

// AllTypes lists every event type, in the order subscribers attach
func AllTypes() []Type {
	return []Type{
		SurveyActivated,
		SurveyClosed,
		ResponseSubmitted,
		ResponseAttached,
		ReadingsSubmitted,
		InstallationRegistered,
	}
}

// Event is the envelope published on the queue
type Event struct {
	ID         string      `json:"id"`
	Type       Type        `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	RequestID  string      `json:"request_id,omitempty"`
	Data       interface{} `json:"data"`
}

// Subject returns the queue subject for typ
func Subject(prefix string, typ Type) string {
	if prefix == "" {
		return string(typ)
	}
	return prefix + "." + string(typ)
}

// Emitter publishes events best-effort. A nil *Emitter is valid and
// drops everything.
type Emitter struct {
	pub    queue.Publisher
	prefix string
	logger *logging.Logger
}

// NewEmitter creates an emitter publishing to pub under prefix
func NewEmitter(pub queue.Publisher, prefix string, logger *logging.Logger) *Emitter {
	return &Emitter{pub: pub, prefix: prefix, logger: logger}
}

// Emit encodes and publishes an event. Failures are logged, never returned.
func (e *Emitter) Emit(ctx context.Context, typ Type, data interface{}) {
	if e == nil || e.pub == nil {
		return
	}

	payload, err := e.encode(ctx, typ, data)
	if err != nil {
		e.logger.Warn("Failed to encode event", "type", typ, "error", err)
		return
	}

	pubCtx, cancel := publishContext(ctx)
	defer cancel()

	if err := e.pub.Publish(pubCtx, Subject(e.prefix, typ), payload); err != nil {
		e.logger.Warn("Failed to publish event", "type", typ, "error", err)
	}
}

// EmitAll publishes one event of typ per entry of data in a single batch
func (e *Emitter) EmitAll(ctx context.Context, typ Type, data []interface{}) {
	if e == nil || e.pub == nil || len(data) == 0 {
		return
	}

	subject := Subject(e.prefix, typ)
	messages := make([]queue.BatchMessage, 0, len(data))
	for _, d := range data {
		payload, err := e.encode(ctx, typ, d)
		if err != nil {
			e.logger.Warn("Failed to encode event", "type", typ, "error", err)
			continue
		}
		messages = append(messages, queue.BatchMessage{Subject: subject, Data: payload})
	}
	if len(messages) == 0 {
		return
	}

	pubCtx, cancel := publishContext(ctx)
	defer cancel()

	published, err := e.pub.PublishBatch(pubCtx, messages)
	if err != nil {
		e.logger.Warn("Failed to publish events", "type", typ,
			"published", published, "total", len(messages), "error", err)
	}
}

func (e *Emitter) encode(ctx context.Context, typ Type, data interface{}) ([]byte, error) {
	return sonic.Marshal(Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		RequestID:  logging.RequestID(ctx),
		Data:       data,
	})
}

// the request may already be finishing; publishing gets its own deadline
func publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), utils.EventPublishTimeout)
}

// Decode parses an event published by Emit
func Decode(data []byte) (*Event, error) {
	var evt Event
	if err := sonic.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
