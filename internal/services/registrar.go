package services

import (
	"context"

	"github.com/fieldsurvey/fieldsurvey/internal/counter"
	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
)

// Registrar hands out installation ids
type Registrar struct {
	logger  *logging.Logger
	counter counter.Counter
	emitter *events.Emitter
}

// NewRegistrar creates a new Registrar
func NewRegistrar(logger *logging.Logger, c counter.Counter, emitter *events.Emitter) *Registrar {
	return &Registrar{
		logger:  logger,
		counter: c,
		emitter: emitter,
	}
}

// Register issues the next installation id. Ids are never reused.
func (r *Registrar) Register(ctx context.Context) (*models.RegisterResult, error) {
	id, err := r.counter.Next(ctx)
	if err != nil {
		r.logger.Error("Failed to issue installation id", "error", err)
		return nil, wrapError(CodeInternal, err)
	}

	r.logger.Info("Installation registered", "installation_id", id)
	r.emitter.Emit(ctx, events.InstallationRegistered, map[string]interface{}{
		"installation_id": id,
	})

	return &models.RegisterResult{InstallationID: id}, nil
}
