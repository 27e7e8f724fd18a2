package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the behaviour every driver must share
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SurveyUpsertAndLookup", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		start := models.StartOfDay(time.Now())
		sv := &models.Survey{
			ID:         "s-1",
			Code:       42,
			Title:      "Water",
			Status:     models.SurveyStatusDraft,
			StartDate:  &start,
			Inputs:     []models.Input{{"id": float64(1), "label": "photo"}},
			Generation: 1,
		}
		require.NoError(t, s.SaveSurvey(ctx, sv))

		got, err := s.GetSurvey(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, 42, got.Code)
		assert.Equal(t, "Water", got.Title)
		require.Len(t, got.Inputs, 1)
		assert.Equal(t, "photo", got.Inputs[0]["label"])
		require.NotNil(t, got.StartDate)
		assert.True(t, start.Equal(*got.StartDate))

		sv.Title = "Water v2"
		sv.Status = models.SurveyStatusActive
		require.NoError(t, s.SaveSurvey(ctx, sv))

		byCode, err := s.ListSurveysByCode(ctx, 42)
		require.NoError(t, err)
		require.Len(t, byCode, 1)
		assert.Equal(t, "Water v2", byCode[0].Title)
		assert.Equal(t, models.SurveyStatusActive, byCode[0].Status)

		_, err = s.GetSurvey(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("OpenCodeIsUnique", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveSurvey(ctx, &models.Survey{ID: "a", Code: 7, Status: models.SurveyStatusActive}))
		err := s.SaveSurvey(ctx, &models.Survey{ID: "b", Code: 7, Status: models.SurveyStatusDraft})
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, s.SaveSurvey(ctx, &models.Survey{ID: "a", Code: 7, Status: models.SurveyStatusClosed}))
		require.NoError(t, s.SaveSurvey(ctx, &models.Survey{ID: "b", Code: 7, Status: models.SurveyStatusActive}))

		all, err := s.ListSurveys(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("ResponseDedupKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := &models.Response{
			ID:             "r-1",
			SurveyID:       "s-1",
			InstallationID: 7,
			Timestamp:      1000,
			Answers: []models.Answer{
				{ID: 1, Value: models.SingleValue("x")},
				{ID: 2, Value: models.MultipleValue("a.jpg", "b.jpg")},
			},
			Locationstamp: map[string]interface{}{"lat": 1.5},
			Generation:    1,
			CreatedAt:     time.Now().UTC(),
		}
		require.NoError(t, s.CreateResponse(ctx, r))

		dup := *r
		dup.ID = "r-2"
		assert.ErrorIs(t, s.CreateResponse(ctx, &dup), ErrConflict)

		found, err := s.FindResponseByKey(ctx, 7, 1000)
		require.NoError(t, err)
		assert.Equal(t, "r-1", found.ID)
		require.Len(t, found.Answers, 2)
		single, ok := found.Answers[0].Value.Single()
		assert.True(t, ok)
		assert.Equal(t, "x", single)
		multi, ok := found.Answers[1].Value.Multiple()
		assert.True(t, ok)
		assert.Equal(t, []string{"a.jpg", "b.jpg"}, multi)
		assert.Equal(t, 1.5, found.Locationstamp["lat"])

		_, err = s.FindResponseByKey(ctx, 7, 1001)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SaveResponse", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := &models.Response{ID: "r-1", SurveyID: "s-1", InstallationID: 1, Timestamp: 5, Generation: 1,
			Answers: []models.Answer{{ID: 3, Value: models.MultipleValue("p.jpg")}}}
		require.NoError(t, s.CreateResponse(ctx, r))

		r.Answers[0].Value = models.MultipleValue("http://host/uploads/u.jpg")
		require.NoError(t, s.SaveResponse(ctx, r))

		got, err := s.GetResponse(ctx, "r-1")
		require.NoError(t, err)
		entries, _ := got.Answers[0].Value.Multiple()
		assert.Equal(t, []string{"http://host/uploads/u.jpg"}, entries)

		missing := &models.Response{ID: "nope", InstallationID: 9, Timestamp: 9}
		assert.ErrorIs(t, s.SaveResponse(ctx, missing), ErrNotFound)
	})

	t.Run("GenerationsAndPurge", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, gen := range []int64{1, 1, 2} {
			require.NoError(t, s.CreateResponse(ctx, &models.Response{
				ID:             fmt.Sprintf("r-%d", i),
				SurveyID:       "s-1",
				InstallationID: 1,
				Timestamp:      int64(100 + i),
				Generation:     gen,
			}))
		}
		require.NoError(t, s.CreateResponse(ctx, &models.Response{
			ID: "other", SurveyID: "s-2", InstallationID: 2, Timestamp: 1, Generation: 1,
		}))

		gen1, err := s.ListResponses(ctx, "s-1", 1)
		require.NoError(t, err)
		require.Len(t, gen1, 2)
		assert.Equal(t, "r-1", gen1[0].ID, "newest first")

		deleted, err := s.DeleteResponses(ctx, "s-1", 2)
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)

		gen1, err = s.ListResponses(ctx, "s-1", 1)
		require.NoError(t, err)
		assert.Empty(t, gen1)

		gen2, err := s.ListResponses(ctx, "s-1", 2)
		require.NoError(t, err)
		assert.Len(t, gen2, 1)

		others, err := s.ListResponses(ctx, "s-2", 1)
		require.NoError(t, err)
		assert.Len(t, others, 1)

		all, err := s.ListAllResponses(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "r-2", all[0].ID, "newest first across surveys")
		assert.Equal(t, "other", all[1].ID)

		// purged keys are free again
		_, err = s.FindResponseByKey(ctx, 1, 100)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Readings", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateReadings(ctx, []*models.Reading{
			{ID: "a", SurveyID: "s-1", InstallationID: 1, SensorID: "temp", Value: 20.5, Timestamp: 10},
			{ID: "b", SurveyID: "s-1", InstallationID: 1, SensorID: "temp", Value: 21, Timestamp: 30},
			{ID: "c", SurveyID: "s-2", InstallationID: 1, SensorID: "temp", Value: 1, Timestamp: 20},
		}))
		require.NoError(t, s.CreateReadings(ctx, nil))

		got, err := s.ListReadings(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ID)
		assert.Equal(t, 20.5, got[1].Value)
	})

	t.Run("NextInstallationIDConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 10
		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := s.NextInstallationID(ctx)
				if err == nil {
					ids <- id
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[int64]bool)
		for id := range ids {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)
		for i := int64(1); i <= n; i++ {
			assert.True(t, seen[i], "missing id %d", i)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := &models.Response{ID: "r", InstallationID: 1, Timestamp: 1,
		Answers: []models.Answer{{ID: 1, Value: models.MultipleValue("a")}}}
	require.NoError(t, s.CreateResponse(ctx, r))

	got, err := s.GetResponse(ctx, "r")
	require.NoError(t, err)
	got.Answers[0].Value = models.SingleValue("changed")

	again, err := s.GetResponse(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, models.AnswerMultiple, again.Answers[0].Value.Kind())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), storeConfig("cassandra", ""), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
