package services

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/uploads"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 17, 14, 30, 0, 0, time.UTC)

type fixture struct {
	store       *store.MemoryStore
	fs          afero.Fs
	surveys     *SurveyService
	intake      *IntakeService
	attachments *AttachmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewNop()
	st := store.NewMemoryStore()
	fs := afero.NewMemMapFs()

	files, err := uploads.NewStoreWithFs(fs, config.UploadsConfig{
		Dir:     "/data/uploads",
		BaseURL: "https://surveys.example.org/v1/uploads",
	})
	require.NoError(t, err)

	surveys := NewSurveyService(logger, st, nil, 0)
	surveys.now = func() time.Time { return fixedNow }
	t.Cleanup(surveys.Stop)

	intake := NewIntakeService(logger, st, nil)
	intake.now = func() time.Time { return fixedNow }

	return &fixture{
		store:       st,
		fs:          fs,
		surveys:     surveys,
		intake:      intake,
		attachments: NewAttachmentService(logger, st, files, nil),
	}
}

func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := AsServiceError(err)
	require.True(t, ok, "expected ServiceError, got %T: %v", err, err)
	require.Equal(t, code, svcErr.Code, "unexpected error: %v", err)
}

// fakeUpload is an UploadedFile backed by memory that records Close
type fakeUpload struct {
	name    string
	data    []byte
	openErr error
	closed  int
}

func (f *fakeUpload) Filename() string { return f.name }

func (f *fakeUpload) Open() (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &trackingReader{Reader: bytes.NewReader(f.data), upload: f}, nil
}

type trackingReader struct {
	io.Reader
	upload *fakeUpload
}

func (r *trackingReader) Close() error {
	r.upload.closed++
	return nil
}

var errOpen = errors.New("temp file vanished")
