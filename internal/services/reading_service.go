package services

import (
	"context"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/google/uuid"
)

// ReadingService stores sensor readings sent by installations
type ReadingService struct {
	logger  *logging.Logger
	store   store.Store
	emitter *events.Emitter
	now     func() time.Time
}

// NewReadingService creates a new ReadingService
func NewReadingService(logger *logging.Logger, st store.Store, emitter *events.Emitter) *ReadingService {
	return &ReadingService{
		logger:  logger,
		store:   st,
		emitter: emitter,
		now:     time.Now,
	}
}

// Submit stores a batch of readings. Entries without a timestamp get the
// server time.
func (s *ReadingService) Submit(ctx context.Context, batch []models.ReadingRequest) ([]*models.Reading, error) {
	if len(batch) > utils.MaxReadingsPerBatch {
		return nil, NewServiceErrorWithDetails(CodeInvalidRequest, "too many readings in one batch",
			map[string]interface{}{"max": utils.MaxReadingsPerBatch, "got": len(batch)})
	}

	now := s.now().UTC()
	readings := make([]*models.Reading, 0, len(batch))
	surveys := make(map[string]int)
	for i := range batch {
		req := &batch[i]
		if req.Value == nil {
			return nil, NewServiceErrorWithDetails(CodeInvalidRequest, "reading value is required",
				map[string]interface{}{"index": i})
		}
		ts := req.Timestamp
		if ts == 0 {
			ts = now.UnixMilli()
		}
		readings = append(readings, &models.Reading{
			ID:             uuid.Must(uuid.NewV7()).String(),
			SurveyID:       req.SurveyID,
			InstallationID: req.InstallationID,
			SensorID:       req.SensorID,
			Value:          *req.Value,
			Timestamp:      ts,
			CreatedAt:      now,
		})
		surveys[req.SurveyID]++
	}

	if len(readings) == 0 {
		return readings, nil
	}

	if err := s.store.CreateReadings(ctx, readings); err != nil {
		s.logger.Error("Failed to store readings", "count", len(readings), "error", err)
		return nil, wrapError(CodeSaveFailed, err)
	}

	s.logger.Debug("Readings stored", "count", len(readings), "surveys", len(surveys))
	perSurvey := make([]interface{}, 0, len(surveys))
	for surveyID, count := range surveys {
		perSurvey = append(perSurvey, map[string]interface{}{
			"survey_id": surveyID,
			"count":     count,
		})
	}
	s.emitter.EmitAll(ctx, events.ReadingsSubmitted, perSurvey)

	return readings, nil
}
