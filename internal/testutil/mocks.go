package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"vfd/internal/models"
	"vfd/internal/providers"
	"vfd/internal/storage"
	"vfd/internal/structures"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

func (m *MockLogger) Entries(level string) []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, e := range m.Logs {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// MockCache is a map-backed providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Data[key]
	return v, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

func (m *MockCache) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
}

// MockEmbedder implements semantic.Embedder with scripted responses.
type MockEmbedder struct {
	mu        sync.Mutex
	Calls     int
	Err       error
	Vectors   [][]float32
	EmbedFunc func(inputs []string) ([][]float32, error)
}

func (m *MockEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	m.mu.Lock()
	m.Calls++
	fn := m.EmbedFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(inputs)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Vectors != nil {
		return m.Vectors, nil
	}
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MemStore is an in-memory storage.StoreInterface with the same CAS
// semantics as the sqlite implementation, plus fault injection hooks.
type MemStore struct {
	mu           sync.Mutex
	Samples      map[string]*models.Sample
	Fingerprints map[string]*models.VoiceFingerprint
	TraitSets    map[string][]*models.TraitSet
	Locks        map[string]map[string]*models.Lock

	FailCreateSample bool
	FailSaveTraitSet bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		Samples:      make(map[string]*models.Sample),
		Fingerprints: make(map[string]*models.VoiceFingerprint),
		TraitSets:    make(map[string][]*models.TraitSet),
		Locks:        make(map[string]map[string]*models.Lock),
	}
}

func (m *MemStore) CreateSample(_ context.Context, sample *models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateSample {
		return errors.New("storage unreachable")
	}
	cp := *sample
	m.Samples[sample.ID] = &cp
	return nil
}

func (m *MemStore) SamplesByOwner(_ context.Context, ownerID string) ([]*models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(s *models.Sample) bool { return s.OwnerID == ownerID }), nil
}

func (m *MemStore) SamplesByFingerprint(_ context.Context, fingerprintID string) ([]*models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(s *models.Sample) bool { return s.FingerprintID == fingerprintID }), nil
}

func (m *MemStore) collect(pred func(*models.Sample) bool) []*models.Sample {
	var out []*models.Sample
	for _, s := range m.Samples {
		if pred(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemStore) CountSamplesByOwner(_ context.Context, ownerID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, words := 0, 0
	for _, s := range m.Samples {
		if s.OwnerID == ownerID {
			count++
			words += s.WordCount
		}
	}
	return count, words, nil
}

func (m *MemStore) AttachSamples(_ context.Context, ownerID, fingerprintID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Samples {
		if s.OwnerID == ownerID && s.FingerprintID == "" {
			s.FingerprintID = fingerprintID
		}
	}
	return nil
}

func (m *MemStore) CreateFingerprint(_ context.Context, fp *models.VoiceFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *fp
	m.Fingerprints[fp.ID] = &cp
	return nil
}

func (m *MemStore) FingerprintByID(_ context.Context, id string) (*models.VoiceFingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.Fingerprints[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *fp
	return &cp, nil
}

func (m *MemStore) FingerprintByOwner(_ context.Context, ownerID string) (*models.VoiceFingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.VoiceFingerprint
	for _, fp := range m.Fingerprints {
		if fp.OwnerID != ownerID {
			continue
		}
		if best == nil || better(fp, best) {
			best = fp
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func better(a, b *models.VoiceFingerprint) bool {
	if (a.Status == models.StatusActive) != (b.Status == models.StatusActive) {
		return a.Status == models.StatusActive
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func (m *MemStore) ClaimComputation(_ context.Context, id string) (bool, error) {
	return m.cas(id, models.ComputableStatuses(), models.StatusComputing, -1)
}

func (m *MemStore) CompleteComputation(_ context.Context, id string, version int) (bool, error) {
	return m.cas(id, []string{models.StatusComputing}, models.StatusActive, version)
}

func (m *MemStore) FailComputation(_ context.Context, id string) (bool, error) {
	return m.cas(id, []string{models.StatusComputing}, models.StatusFailed, -1)
}

func (m *MemStore) cas(id string, from []string, to string, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.Fingerprints[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if fp.Status == f {
			fp.Status = to
			fp.UpdatedAt = time.Now().UTC()
			if version >= 0 {
				fp.Version = version
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) StaleActiveFingerprints(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, fp := range m.Fingerprints {
		if fp.Status != models.StatusActive {
			continue
		}
		var latest time.Time
		for _, ts := range m.TraitSets[id] {
			if ts.CreatedAt.After(latest) {
				latest = ts.CreatedAt
			}
		}
		for _, s := range m.Samples {
			if s.FingerprintID == id && s.CreatedAt.After(latest) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemStore) SaveTraitSet(_ context.Context, ts *models.TraitSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaveTraitSet {
		return errors.New("storage unreachable")
	}
	for _, existing := range m.TraitSets[ts.FingerprintID] {
		if existing.Version == ts.Version {
			return errors.New("unique constraint failed: trait_sets.version")
		}
	}
	cp := *ts
	m.TraitSets[ts.FingerprintID] = append(m.TraitSets[ts.FingerprintID], &cp)
	return nil
}

func (m *MemStore) TraitSetByVersion(_ context.Context, fingerprintID string, version int) (*models.TraitSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ts := range m.TraitSets[fingerprintID] {
		if ts.Version == version {
			cp := *ts
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MemStore) UpsertLock(_ context.Context, lock *models.Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Locks[lock.OwnerID] == nil {
		m.Locks[lock.OwnerID] = make(map[string]*models.Lock)
	}
	cp := *lock
	m.Locks[lock.OwnerID][lock.Category] = &cp
	return nil
}

func (m *MemStore) LocksByOwner(_ context.Context, ownerID string) ([]*models.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Lock
	for _, l := range m.Locks[ownerID] {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *MemStore) DeleteOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.Samples {
		if s.OwnerID == ownerID {
			delete(m.Samples, id)
		}
	}
	for id, fp := range m.Fingerprints {
		if fp.OwnerID == ownerID {
			delete(m.TraitSets, id)
			delete(m.Fingerprints, id)
		}
	}
	delete(m.Locks, ownerID)
	return nil
}

func (m *MemStore) Close() error { return nil }

// TestConfig returns a config with the documented defaults and fast timings
// suitable for tests.
func TestConfig() *structures.Config {
	return &structures.Config{
		Analysis: structures.AnalysisConfig{
			MinSamples:      3,
			MinCorpusTokens: 20,
			ToleranceFactor: 1.5,
		},
		Semantic: structures.SemanticConfig{
			CallTimeout: 200 * time.Millisecond,
			MaxRetries:  1,
		},
		Events: structures.EventsConfig{
			DebounceWindow: 20 * time.Millisecond,
			QueueSize:      256,
		},
		Scheduler: structures.SchedulerConfig{
			RecomputeInterval: time.Second,
		},
		Storage: structures.StorageConfig{
			CompressMin: 64,
		},
	}
}
