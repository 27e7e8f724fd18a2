package services

import (
	"context"
	"errors"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/google/uuid"
)

// IntakeService accepts survey responses from installations. Submissions
// are idempotent on (installation_id, timestamp).
type IntakeService struct {
	logger  *logging.Logger
	store   store.Store
	emitter *events.Emitter
	now     func() time.Time
}

// NewIntakeService creates a new IntakeService
func NewIntakeService(logger *logging.Logger, st store.Store, emitter *events.Emitter) *IntakeService {
	return &IntakeService{
		logger:  logger,
		store:   st,
		emitter: emitter,
		now:     time.Now,
	}
}

// Submit stores req as a response of the current survey generation and
// returns its id. A resubmission returns the id of the stored record.
func (s *IntakeService) Submit(ctx context.Context, req *models.SubmitResponseRequest) (*models.IDResult, error) {
	survey, err := s.store.GetSurvey(ctx, req.SurveyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewServiceErrorWithDetails(CodeSurveyNotFound, "",
				map[string]interface{}{"survey_id": req.SurveyID})
		}
		return nil, wrapError(CodeInternal, err)
	}

	// Duplicates are answered before the closed check so a client retrying
	// after the survey closed still learns its id.
	if id, ok, err := s.existing(ctx, req); err != nil {
		return nil, err
	} else if ok {
		return &models.IDResult{ID: id}, nil
	}

	if survey.IsClosed() {
		return nil, NewServiceErrorWithDetails(CodeSurveyClosed, "",
			map[string]interface{}{"survey_id": survey.ID})
	}

	answers := req.Answers
	if answers == nil {
		answers = []models.Answer{}
	}

	response := &models.Response{
		ID:             uuid.Must(uuid.NewV7()).String(),
		SurveyID:       survey.ID,
		InstallationID: req.InstallationID,
		Timestamp:      req.Timestamp,
		Answers:        answers,
		Locationstamp:  req.Locationstamp,
		Generation:     survey.Generation,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.store.CreateResponse(ctx, response); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// lost a race against a concurrent identical submission
			if id, ok, lookupErr := s.existing(ctx, req); lookupErr == nil && ok {
				return &models.IDResult{ID: id}, nil
			}
		}
		s.logger.Error("Failed to store response",
			"survey_id", survey.ID,
			"installation_id", req.InstallationID,
			"error", err)
		return nil, wrapError(CodeSaveFailed, err)
	}

	s.logger.WithContext(ctx).Debug("Response stored",
		"response_id", response.ID,
		"survey_id", survey.ID,
		"installation_id", req.InstallationID,
		"answers", len(answers))

	s.emitter.Emit(ctx, events.ResponseSubmitted, map[string]interface{}{
		"id":              response.ID,
		"survey_id":       survey.ID,
		"installation_id": response.InstallationID,
		"timestamp":       response.Timestamp,
		"generation":      response.Generation,
	})

	return &models.IDResult{ID: response.ID}, nil
}

func (s *IntakeService) existing(ctx context.Context, req *models.SubmitResponseRequest) (string, bool, error) {
	found, err := s.store.FindResponseByKey(ctx, req.InstallationID, req.Timestamp)
	switch {
	case err == nil:
		return found.ID, true, nil
	case errors.Is(err, store.ErrNotFound):
		return "", false, nil
	default:
		return "", false, wrapError(CodeInternal, err)
	}
}

// ListAll returns every stored response across surveys, newest first
func (s *IntakeService) ListAll(ctx context.Context) ([]*models.Response, error) {
	responses, err := s.store.ListAllResponses(ctx)
	if err != nil {
		return nil, wrapError(CodeInternal, err)
	}
	return responses, nil
}
