package store

import (
	"context"
	"sync"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
)

type dedupKey struct {
	installationID int64
	timestamp      int64
}

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	surveys   map[string]*models.Survey
	responses map[string]*models.Response
	keys      map[dedupKey]string
	readings  []*models.Reading
	settings  models.Setting
}

// NewMemoryStore creates an empty in-memory store with a seeded settings counter
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		surveys:   make(map[string]*models.Survey),
		responses: make(map[string]*models.Response),
		keys:      make(map[dedupKey]string),
		settings:  models.Setting{ID: models.SettingsID},
	}
}

func (m *MemoryStore) ListSurveys(ctx context.Context) ([]*models.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Survey, 0, len(m.surveys))
	for _, s := range m.surveys {
		out = append(out, s.Clone())
	}
	sortSurveys(out)
	return out, nil
}

func (m *MemoryStore) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.surveys[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListSurveysByCode(ctx context.Context, code int) ([]*models.Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Survey
	for _, s := range m.surveys {
		if s.Code == code {
			out = append(out, s.Clone())
		}
	}
	sortSurveys(out)
	return out, nil
}

func (m *MemoryStore) SaveSurvey(ctx context.Context, s *models.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.IsClosed() {
		for id, other := range m.surveys {
			if id != s.ID && other.Code == s.Code && !other.IsClosed() {
				return ErrConflict
			}
		}
	}
	m.surveys[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) ListAllResponses(ctx context.Context) ([]*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Response, 0, len(m.responses))
	for _, r := range m.responses {
		out = append(out, r.Clone())
	}
	sortResponses(out)
	return out, nil
}

func (m *MemoryStore) ListResponses(ctx context.Context, surveyID string, generation int64) ([]*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Response, 0)
	for _, r := range m.responses {
		if r.SurveyID == surveyID && r.Generation == generation {
			out = append(out, r.Clone())
		}
	}
	sortResponses(out)
	return out, nil
}

func (m *MemoryStore) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.responses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) FindResponseByKey(ctx context.Context, installationID, timestamp int64) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.keys[dedupKey{installationID, timestamp}]
	if !ok {
		return nil, ErrNotFound
	}
	return m.responses[id].Clone(), nil
}

func (m *MemoryStore) CreateResponse(ctx context.Context, r *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dedupKey{r.InstallationID, r.Timestamp}
	if _, taken := m.keys[key]; taken {
		return ErrConflict
	}
	if _, taken := m.responses[r.ID]; taken {
		return ErrConflict
	}
	m.responses[r.ID] = r.Clone()
	m.keys[key] = r.ID
	return nil
}

func (m *MemoryStore) SaveResponse(ctx context.Context, r *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.responses[r.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.InstallationID != r.InstallationID || existing.Timestamp != r.Timestamp {
		key := dedupKey{r.InstallationID, r.Timestamp}
		if _, taken := m.keys[key]; taken {
			return ErrConflict
		}
		delete(m.keys, dedupKey{existing.InstallationID, existing.Timestamp})
		m.keys[key] = r.ID
	}
	m.responses[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) DeleteResponses(ctx context.Context, surveyID string, generation int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, r := range m.responses {
		if r.SurveyID == surveyID && r.Generation < generation {
			delete(m.keys, dedupKey{r.InstallationID, r.Timestamp})
			delete(m.responses, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) ListReadings(ctx context.Context, surveyID string) ([]*models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Reading, 0)
	for _, r := range m.readings {
		if r.SurveyID == surveyID {
			c := *r
			out = append(out, &c)
		}
	}
	sortReadings(out)
	return out, nil
}

func (m *MemoryStore) CreateReadings(ctx context.Context, readings []*models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range readings {
		c := *r
		m.readings = append(m.readings, &c)
	}
	return nil
}

func (m *MemoryStore) NextInstallationID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings.NextInstallationID++
	return m.settings.NextInstallationID, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}
