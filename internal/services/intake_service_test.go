package services

import (
	"context"
	"sync"
	"testing"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activate(t *testing.T, f *fixture, id string, code int) {
	t.Helper()
	_, err := f.surveys.ActivateOrUpdate(context.Background(), models.SurveyStatusActive,
		&models.SurveyPayload{ID: id, Code: intPtr(code)})
	require.NoError(t, err)
}

func TestIntakeService_DuplicateReturnsSameID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activate(t, f, "s-1", 1)

	req := &models.SubmitResponseRequest{
		SurveyID:       "s-1",
		InstallationID: 7,
		Timestamp:      1000,
		Answers:        []models.Answer{{ID: 1, Value: models.SingleValue("x")}},
	}
	first, err := f.intake.Submit(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := f.intake.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := f.store.ListResponses(ctx, "s-1", 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, fixedNow, stored[0].CreatedAt)
	assert.EqualValues(t, 1, stored[0].Generation)
}

func TestIntakeService_ListAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activate(t, f, "s-1", 1)
	activate(t, f, "s-2", 2)

	all, err := f.intake.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	for _, req := range []*models.SubmitResponseRequest{
		{SurveyID: "s-1", InstallationID: 1, Timestamp: 10},
		{SurveyID: "s-2", InstallationID: 1, Timestamp: 30},
		{SurveyID: "s-1", InstallationID: 2, Timestamp: 20},
	} {
		_, err := f.intake.Submit(ctx, req)
		require.NoError(t, err)
	}

	all, err = f.intake.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{30, 20, 10}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})
	assert.Equal(t, "s-2", all[0].SurveyID)
}

func TestIntakeService_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activate(t, f, "s-1", 1)

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.intake.Submit(ctx, &models.SubmitResponseRequest{SurveyID: "s-1", InstallationID: 3, Timestamp: 55})
			errs[i] = err
			if res != nil {
				ids[i] = res.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	stored, err := f.store.ListResponses(ctx, "s-1", 1)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestIntakeService_ClosedSurvey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activate(t, f, "s-1", 1)

	accepted, err := f.intake.Submit(ctx, &models.SubmitResponseRequest{SurveyID: "s-1", InstallationID: 7, Timestamp: 1})
	require.NoError(t, err)

	_, err = f.surveys.Close(ctx, 1)
	require.NoError(t, err)

	_, err = f.intake.Submit(ctx, &models.SubmitResponseRequest{SurveyID: "s-1", InstallationID: 7, Timestamp: 2})
	requireCode(t, err, CodeSurveyClosed)

	// a retry of an accepted response still succeeds
	again, err := f.intake.Submit(ctx, &models.SubmitResponseRequest{SurveyID: "s-1", InstallationID: 7, Timestamp: 1})
	require.NoError(t, err)
	assert.Equal(t, accepted.ID, again.ID)
}

func TestIntakeService_UnknownSurvey(t *testing.T) {
	f := newFixture(t)

	_, err := f.intake.Submit(context.Background(), &models.SubmitResponseRequest{SurveyID: "ghost", InstallationID: 1, Timestamp: 1})
	requireCode(t, err, CodeSurveyNotFound)
}

func TestIntakeService_NilAnswersStoredEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activate(t, f, "s-1", 1)

	res, err := f.intake.Submit(ctx, &models.SubmitResponseRequest{SurveyID: "s-1", InstallationID: 2, Timestamp: 9})
	require.NoError(t, err)

	stored, err := f.store.GetResponse(ctx, res.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Answers)
	assert.Empty(t, stored.Answers)
}

// Activate code 42, submit, resubmit, close, submit again.
func TestIntakeScenario_Code42(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.surveys.ActivateOrUpdate(ctx, models.SurveyStatusDraft, &models.SurveyPayload{ID: "s-42", Code: intPtr(42)})
	require.NoError(t, err)
	_, err = f.surveys.ActivateOrUpdate(ctx, models.SurveyStatusActive, &models.SurveyPayload{ID: "s-42"})
	require.NoError(t, err)

	req := &models.SubmitResponseRequest{
		SurveyID:       "s-42",
		InstallationID: 7,
		Timestamp:      1000,
		Answers:        []models.Answer{{ID: 1, Value: models.SingleValue("x")}},
	}
	first, err := f.intake.Submit(ctx, req)
	require.NoError(t, err)

	second, err := f.intake.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	responses, err := f.surveys.ListResponses(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, responses, 1)

	_, err = f.surveys.Close(ctx, 42)
	require.NoError(t, err)

	req.Timestamp = 2000
	_, err = f.intake.Submit(ctx, req)
	requireCode(t, err, CodeSurveyClosed)
}
