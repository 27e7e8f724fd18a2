package services

import (
	"context"
	"testing"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/store"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingService_Submit(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewReadingService(logging.NewNop(), st, nil)
	svc.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	created, err := svc.Submit(ctx, []models.ReadingRequest{
		{SurveyID: "s-1", InstallationID: 1, SensorID: "temp", Value: floatPtr(21.5), Timestamp: 500},
		{SurveyID: "s-1", InstallationID: 1, SensorID: "temp", Value: floatPtr(0)},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotEqual(t, created[0].ID, created[1].ID)
	assert.EqualValues(t, 500, created[0].Timestamp)
	assert.Equal(t, fixedNow.UnixMilli(), created[1].Timestamp)
	assert.Equal(t, fixedNow, created[1].CreatedAt)

	stored, err := st.ListReadings(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, created[1].ID, stored[0].ID, "newest first")
}

func TestReadingService_Limits(t *testing.T) {
	svc := NewReadingService(logging.NewNop(), store.NewMemoryStore(), nil)
	ctx := context.Background()

	created, err := svc.Submit(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, created)

	_, err = svc.Submit(ctx, make([]models.ReadingRequest, utils.MaxReadingsPerBatch+1))
	requireCode(t, err, CodeInvalidRequest)

	_, err = svc.Submit(ctx, []models.ReadingRequest{{SurveyID: "s", InstallationID: 1, SensorID: "x"}})
	requireCode(t, err, CodeInvalidRequest)
}
