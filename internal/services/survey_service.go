package services

import (
	"context"
	"errors"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/cache"
	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
)

// SurveyService owns survey state transitions and lookups by code
type SurveyService struct {
	logger  *logging.Logger
	store   store.Store
	emitter *events.Emitter
	byCode  *cache.TTLCache[int, *models.Survey]
	now     func() time.Time
}

// NewSurveyService creates a new SurveyService. cacheTTL <= 0 disables
// the survey-by-code cache.
func NewSurveyService(logger *logging.Logger, st store.Store, emitter *events.Emitter, cacheTTL time.Duration) *SurveyService {
	return &SurveyService{
		logger:  logger,
		store:   st,
		emitter: emitter,
		byCode:  cache.New[int, *models.Survey](cacheTTL),
		now:     time.Now,
	}
}

// Stop releases the background work owned by the service
func (s *SurveyService) Stop() {
	s.byCode.Stop()
}

// ActivateOrUpdate upserts the survey identified by payload.ID, moves it to
// target and starts a new generation. Responses from earlier generations
// are purged once the survey is saved.
func (s *SurveyService) ActivateOrUpdate(ctx context.Context, target models.SurveyStatus, payload *models.SurveyPayload) (*models.ActivateResult, error) {
	if !target.IsActivatable() {
		return nil, NewServiceErrorWithDetails(CodeInvalidRequest, "status must be one of: draft, active, test",
			map[string]interface{}{"status": string(target)})
	}

	survey, err := s.store.GetSurvey(ctx, payload.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if payload.Code == nil {
			return nil, NewServiceError(CodeInvalidRequest, "code is required for a new survey")
		}
		survey = &models.Survey{ID: payload.ID, Inputs: []models.Input{}}
	case err != nil:
		return nil, wrapError(CodeInternal, err)
	}

	previousCode := survey.Code
	applyPayload(survey, payload)

	now := s.now()
	start := models.StartOfDay(now)
	survey.Status = target
	survey.StartDate = &start
	survey.Generation++
	survey.UpdatedAt = now.UTC()

	if err := s.store.SaveSurvey(ctx, survey); err != nil {
		s.logger.Warn("Failed to save survey", "survey_id", survey.ID, "code", survey.Code, "error", err)
		if errors.Is(err, store.ErrConflict) {
			return nil, NewServiceErrorWithDetails(CodeSaveFailed, "another open survey uses this code",
				map[string]interface{}{"code": survey.Code})
		}
		return nil, wrapError(CodeSaveFailed, err)
	}

	s.byCode.Delete(previousCode)
	s.byCode.Delete(survey.Code)

	// Older generations are already invisible; a failed purge only leaves garbage.
	purged, err := s.store.DeleteResponses(ctx, survey.ID, survey.Generation)
	if err != nil {
		s.logger.Error("Failed to purge responses of previous generations",
			"survey_id", survey.ID, "generation", survey.Generation, "error", err)
	}

	s.logger.Info("Survey activated",
		"survey_id", survey.ID,
		"code", survey.Code,
		"status", survey.Status,
		"generation", survey.Generation,
		"purged_responses", purged)

	s.emitter.Emit(ctx, events.SurveyActivated, map[string]interface{}{
		"id":         survey.ID,
		"code":       survey.Code,
		"status":     survey.Status,
		"generation": survey.Generation,
		"start_date": start,
	})

	return &models.ActivateResult{ID: survey.ID, StartDate: start}, nil
}

func applyPayload(survey *models.Survey, payload *models.SurveyPayload) {
	if payload.Code != nil {
		survey.Code = *payload.Code
	}
	if payload.Title != nil {
		survey.Title = *payload.Title
	}
	if payload.CampaignID != nil {
		survey.CampaignID = *payload.CampaignID
	}
	if payload.Inputs != nil {
		survey.Inputs = payload.Inputs
	}
}

// Close marks the survey at code as closed
func (s *SurveyService) Close(ctx context.Context, code int) (*models.IDResult, error) {
	survey, err := s.resolveCode(ctx, code)
	if err != nil {
		return nil, err
	}

	survey.Status = models.SurveyStatusClosed
	survey.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSurvey(ctx, survey); err != nil {
		s.logger.Warn("Failed to close survey", "survey_id", survey.ID, "error", err)
		return nil, wrapError(CodeSaveFailed, err)
	}
	s.byCode.Delete(code)

	s.logger.Info("Survey closed", "survey_id", survey.ID, "code", code)
	s.emitter.Emit(ctx, events.SurveyClosed, map[string]interface{}{
		"id":   survey.ID,
		"code": code,
	})

	return &models.IDResult{ID: survey.ID}, nil
}

// Get returns the survey currently addressed by code
func (s *SurveyService) Get(ctx context.Context, code int) (*models.Survey, error) {
	if survey, ok := s.byCode.Get(code); ok {
		return survey.Clone(), nil
	}

	epoch := s.byCode.Epoch()
	survey, err := s.resolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.byCode.SetIfUnchanged(code, survey.Clone(), epoch)
	return survey, nil
}

// List returns every survey
func (s *SurveyService) List(ctx context.Context) ([]*models.Survey, error) {
	surveys, err := s.store.ListSurveys(ctx)
	if err != nil {
		return nil, wrapError(CodeInternal, err)
	}
	return surveys, nil
}

// ListResponses returns the current generation's responses, newest first
func (s *SurveyService) ListResponses(ctx context.Context, code int) ([]*models.Response, error) {
	survey, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, survey.ID, survey.Generation)
	if err != nil {
		return nil, wrapError(CodeInternal, err)
	}
	return responses, nil
}

// ListReadings returns the survey's readings, newest first
func (s *SurveyService) ListReadings(ctx context.Context, code int) ([]*models.Reading, error) {
	survey, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	readings, err := s.store.ListReadings(ctx, survey.ID)
	if err != nil {
		return nil, wrapError(CodeInternal, err)
	}
	return readings, nil
}

// GetWithResponses returns the survey with its responses and readings
func (s *SurveyService) GetWithResponses(ctx context.Context, code int) (*models.SurveyWithResponses, error) {
	survey, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	responses, err := s.store.ListResponses(ctx, survey.ID, survey.Generation)
	if err != nil {
		return nil, wrapError(CodeInternal, err)
	}
	readings, err := s.store.ListReadings(ctx, survey.ID)
	if err != nil {
		return nil, wrapError(CodeInternal, err)
	}

	return &models.SurveyWithResponses{
		Survey:    survey,
		Responses: responses,
		Readings:  readings,
	}, nil
}

// resolveCode picks the survey a code refers to: the open one if any,
// otherwise the most recently started.
func (s *SurveyService) resolveCode(ctx context.Context, code int) (*models.Survey, error) {
	candidates, err := s.store.ListSurveysByCode(ctx, code)
	if err != nil {
		return nil, wrapError(CodeInternal, err)
	}
	if len(candidates) == 0 {
		return nil, NewServiceErrorWithDetails(CodeSurveyNotFound, "",
			map[string]interface{}{"code": code})
	}

	var best *models.Survey
	for _, c := range candidates {
		if best == nil || preferSurvey(c, best) {
			best = c
		}
	}
	return best, nil
}

func preferSurvey(a, b *models.Survey) bool {
	if a.IsClosed() != b.IsClosed() {
		return !a.IsClosed()
	}
	switch {
	case a.StartDate == nil:
		return false
	case b.StartDate == nil:
		return true
	case !a.StartDate.Equal(*b.StartDate):
		return a.StartDate.After(*b.StartDate)
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
