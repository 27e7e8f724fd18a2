package services

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"sync"

	"github.com/fieldsurvey/fieldsurvey/internal/events"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/uploads"
)

const attachLockStripes = 64

// UploadedFile is a file received with a request
type UploadedFile interface {
	// Filename is the name the client sent, matched against placeholders
	Filename() string
	Open() (io.ReadCloser, error)
}

// AttachmentService binds uploaded files to answers of stored responses
type AttachmentService struct {
	logger  *logging.Logger
	store   store.Store
	files   *uploads.Store
	emitter *events.Emitter

	// read-modify-write of a response is serialized per response id
	locks [attachLockStripes]sync.Mutex
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(logger *logging.Logger, st store.Store, files *uploads.Store, emitter *events.Emitter) *AttachmentService {
	return &AttachmentService{
		logger:  logger,
		store:   st,
		files:   files,
		emitter: emitter,
	}
}

func (s *AttachmentService) lockFor(responseID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(responseID))
	return &s.locks[h.Sum32()%attachLockStripes]
}

// AttachFile stores file and writes its public URL into the answer for
// inputID of response responseID. A single-valued answer is replaced; in
// a multi-valued answer only the entry holding the original filename is.
func (s *AttachmentService) AttachFile(ctx context.Context, responseID string, inputID int64, file UploadedFile) (*models.AttachResult, error) {
	mu := s.lockFor(responseID)
	mu.Lock()
	defer mu.Unlock()

	response, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewServiceErrorWithDetails(CodeResponseNotFound, "",
				map[string]interface{}{"response_id": responseID})
		}
		return nil, wrapError(CodeInternal, err)
	}

	idx := response.FindAnswer(inputID)
	if idx < 0 {
		return nil, NewServiceErrorWithDetails(CodeInputNotFound, "",
			map[string]interface{}{"response_id": responseID, "input_id": inputID})
	}

	src, err := file.Open()
	if err != nil {
		return nil, wrapError(CodeFileOpenFailed, err)
	}
	defer src.Close()

	original := file.Filename()
	name, url, err := s.files.Save(original, src)
	if err != nil {
		s.logger.Error("Failed to store upload", "response_id", responseID, "filename", original, "error", err)
		return nil, wrapError(CodeFileOpenFailed, err)
	}

	answer := &response.Answers[idx]
	switch answer.Value.Kind() {
	case models.AnswerEmpty, models.AnswerSingle:
		answer.Value = models.SingleValue(url)
	case models.AnswerMultiple:
		merged, ok := answer.Value.ReplacePlaceholder(original, url)
		if !ok {
			s.discard(name)
			return nil, NewServiceErrorWithDetails(CodePlaceholderNotFound, "",
				map[string]interface{}{"input_id": inputID, "filename": original})
		}
		answer.Value = merged
	default:
		s.discard(name)
		return nil, NewServiceErrorWithDetails(CodePlaceholderNotFound, "answer value cannot hold a file",
			map[string]interface{}{"input_id": inputID})
	}

	if err := s.store.SaveResponse(ctx, response); err != nil {
		// the file stays reachable at url; only the reference was lost
		s.logger.Error("Failed to save response after upload",
			"response_id", responseID,
			"stored_as", name,
			"error", err)
		return nil, wrapError(CodeSaveFailed, err)
	}

	s.logger.WithContext(ctx).Info("Attachment stored",
		"response_id", responseID,
		"input_id", inputID,
		"stored_as", name)

	s.emitter.Emit(ctx, events.ResponseAttached, map[string]interface{}{
		"response_id": responseID,
		"survey_id":   response.SurveyID,
		"input_id":    inputID,
		"url":         url,
	})

	return &models.AttachResult{ResponseID: responseID, InputID: inputID}, nil
}

func (s *AttachmentService) discard(name string) {
	if err := s.files.Remove(name); err != nil {
		s.logger.Warn("Failed to remove unreferenced upload", "stored_as", name, "error", err)
	}
}
