package handlers

import (
	"reflect"
	"strings"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/counter"
	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/services"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/uploads"
	"github.com/go-playground/validator/v10"
)

// Version is reported by the health endpoint
var Version = "dev"

// Handler contains all HTTP handlers
type Handler struct {
	logger   *logging.Logger
	store    store.Store
	files    *uploads.Store
	validate *validator.Validate
	// Services
	surveyService     *services.SurveyService
	intakeService     *services.IntakeService
	attachmentService *services.AttachmentService
	readingService    *services.ReadingService
	registrar         *services.Registrar
}

// New creates a new handler instance
func New(logger *logging.Logger, st store.Store, ctr counter.Counter,
	files *uploads.Store, emitter *events.Emitter, surveyCacheTTL time.Duration,
) *Handler {
	return &Handler{
		logger:            logger,
		store:             st,
		files:             files,
		validate:          newValidator(),
		surveyService:     services.NewSurveyService(logger, st, emitter, surveyCacheTTL),
		intakeService:     services.NewIntakeService(logger, st, emitter),
		attachmentService: services.NewAttachmentService(logger, st, files, emitter),
		readingService:    services.NewReadingService(logger, st, emitter),
		registrar:         services.NewRegistrar(logger, ctr, emitter),
	}
}

// Close releases resources held by the services
func (h *Handler) Close() {
	h.surveyService.Stop()
}

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
