package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a unique key
	ErrConflict = errors.New("conflict")
)

// Store persists surveys, responses, readings and settings
type Store interface {
	// Surveys
	ListSurveys(ctx context.Context) ([]*models.Survey, error)
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	ListSurveysByCode(ctx context.Context, code int) ([]*models.Survey, error)
	// SaveSurvey upserts by id. ErrConflict when another open survey holds the code.
	SaveSurvey(ctx context.Context, s *models.Survey) error

	// Responses
	ListAllResponses(ctx context.Context) ([]*models.Response, error)
	ListResponses(ctx context.Context, surveyID string, generation int64) ([]*models.Response, error)
	GetResponse(ctx context.Context, id string) (*models.Response, error)
	FindResponseByKey(ctx context.Context, installationID, timestamp int64) (*models.Response, error)
	// CreateResponse returns ErrConflict when the (installation_id, timestamp) key is taken
	CreateResponse(ctx context.Context, r *models.Response) error
	SaveResponse(ctx context.Context, r *models.Response) error
	// DeleteResponses removes responses of surveyID older than generation
	DeleteResponses(ctx context.Context, surveyID string, generation int64) (int64, error)

	// Readings
	ListReadings(ctx context.Context, surveyID string) ([]*models.Reading, error)
	CreateReadings(ctx context.Context, readings []*models.Reading) error

	// NextInstallationID atomically increments the settings counter
	NextInstallationID(ctx context.Context) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (Store, error) {
	switch utils.StoreDriver(cfg.Driver) {
	case utils.StoreDriverMemory, "":
		return NewMemoryStore(), nil
	case utils.StoreDriverMongo:
		return NewMongoStore(ctx, cfg, logger)
	case utils.StoreDriverPostgres, utils.StoreDriverSQLite:
		return NewSQLStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func sortResponses(responses []*models.Response) {
	sort.SliceStable(responses, func(i, j int) bool {
		if responses[i].Timestamp != responses[j].Timestamp {
			return responses[i].Timestamp > responses[j].Timestamp
		}
		return responses[i].ID > responses[j].ID
	})
}

func sortReadings(readings []*models.Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		if readings[i].Timestamp != readings[j].Timestamp {
			return readings[i].Timestamp > readings[j].Timestamp
		}
		return readings[i].ID > readings[j].ID
	})
}

func sortSurveys(surveys []*models.Survey) {
	sort.SliceStable(surveys, func(i, j int) bool {
		if surveys[i].Code != surveys[j].Code {
			return surveys[i].Code < surveys[j].Code
		}
		return surveys[i].ID < surveys[j].ID
	})
}
