package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"vfd/internal/models"
	"vfd/internal/providers"
	"vfd/internal/services"
	"vfd/internal/structures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- local mocks (scoped to controller tests) ---

type mockLogger struct{}

func (m *mockLogger) Errorf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (m *mockLogger) Warnf(_ providers.TypeEnum, _ string, _ ...interface{})  {}
func (m *mockLogger) Debugf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (m *mockLogger) Infof(_ providers.TypeEnum, _ string, _ ...interface{})  {}
func (m *mockLogger) Fatalf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (m *mockLogger) Close()                                                  {}

type addSampleCall struct {
	ownerID string
	text    string
	source  string
}

type mockService struct {
	addCalls        []addSampleCall
	sample          *models.Sample
	addErr          error
	samples         []*models.Sample
	listErr         error
	traitSet        *models.TraitSet
	computeErr      error
	profile         *services.ProfileView
	profileErr      error
	traitsErr       error
	traitsAtVersion int
	constraints     *services.Constraints
	coverage        models.Coverage
	lock            *models.Lock
	lockErr         error
	deleteErr       error
	deleted         []string
}

func (m *mockService) AddSample(_ context.Context, ownerID, text, source string) (*models.Sample, error) {
	m.addCalls = append(m.addCalls, addSampleCall{ownerID, text, source})
	return m.sample, m.addErr
}

func (m *mockService) Compute(_ context.Context, _ string) (*models.TraitSet, error) {
	return m.traitSet, m.computeErr
}

func (m *mockService) RecomputeStale(_ context.Context) int { return 0 }

func (m *mockService) ListSamples(_ context.Context, _ string) ([]*models.Sample, error) {
	return m.samples, m.listErr
}

func (m *mockService) GetProfile(_ context.Context, _ string) (*services.ProfileView, error) {
	return m.profile, m.profileErr
}

func (m *mockService) GetTraits(_ context.Context, _ string) (*models.TraitSet, error) {
	return m.traitSet, m.traitsErr
}

func (m *mockService) GetTraitsAt(_ context.Context, _ string, version int) (*models.TraitSet, error) {
	m.traitsAtVersion = version
	return m.traitSet, m.traitsErr
}

func (m *mockService) GetConstraints(_ context.Context, _ string) (*services.Constraints, error) {
	return m.constraints, nil
}

func (m *mockService) GetCoverage(_ context.Context, _ string) (models.Coverage, error) {
	return m.coverage, nil
}

func (m *mockService) SetLock(_ context.Context, _, _ string, _ bool) (*models.Lock, error) {
	return m.lock, m.lockErr
}

func (m *mockService) DeleteOwner(_ context.Context, ownerID string) error {
	m.deleted = append(m.deleted, ownerID)
	return m.deleteErr
}

type mockCache struct {
	data map[string][]byte
}

func newMockCache() *mockCache                     { return &mockCache{data: make(map[string][]byte)} }
func (m *mockCache) Get(key string) ([]byte, bool) { v, ok := m.data[key]; return v, ok }
func (m *mockCache) Set(key string, value []byte)  { m.data[key] = value }
func (m *mockCache) Del(key string)                { delete(m.data, key) }

// --- helpers ---

func newTestController(svc *mockService, cache *mockCache) *ApiController {
	conf := &structures.Config{}
	return NewApiController(&mockLogger{}, svc, cache, providers.NewMetricsProvider(conf))
}

func ownerRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set("X-Owner-ID", "o1")
	return req
}

func testSample() *models.Sample {
	return &models.Sample{
		ID:        "s1",
		OwnerID:   "o1",
		Text:      "raw text",
		WordCount: 2,
		Source:    models.SourceManual,
		CreatedAt: time.Now().UTC(),
	}
}

// --- SubmitSample tests ---

func TestSubmitSample_ValidPayload(t *testing.T) {
	svc := &mockService{sample: testSample()}
	ac := newTestController(svc, newMockCache())

	req := ownerRequest(http.MethodPost, "/samples", `{"text":"my writing sample","source":"manual"}`)
	rr := httptest.NewRecorder()

	ac.SubmitSample(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, svc.addCalls, 1)
	assert.Equal(t, "o1", svc.addCalls[0].ownerID)
	assert.Equal(t, "my writing sample", svc.addCalls[0].text)
	assert.Equal(t, "manual", svc.addCalls[0].source)

	var resp models.Sample
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.ID)
	assert.Empty(t, resp.Text)
}

func TestSubmitSample_InvalidJSON(t *testing.T) {
	svc := &mockService{}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.SubmitSample(rr, ownerRequest(http.MethodPost, "/samples", "not json"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, svc.addCalls)
}

func TestSubmitSample_EmptyText(t *testing.T) {
	svc := &mockService{addErr: services.ErrEmptySample}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.SubmitSample(rr, ownerRequest(http.MethodPost, "/samples", `{"text":""}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitSample_MissingOwner(t *testing.T) {
	svc := &mockService{addErr: services.ErrMissingOwner}
	ac := newTestController(svc, newMockCache())

	req := httptest.NewRequest(http.MethodPost, "/samples", strings.NewReader(`{"text":"x"}`))
	rr := httptest.NewRecorder()
	ac.SubmitSample(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Recompute tests ---

func TestRecompute_Success(t *testing.T) {
	svc := &mockService{
		profile: &services.ProfileView{FingerprintID: "f1", State: services.StateActive},
		traitSet: &models.TraitSet{
			FingerprintID: "f1",
			Version:       2,
			Summary:       "Voice profile: wide vocabulary range.",
		},
	}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.Recompute(rr, ownerRequest(http.MethodPost, "/recompute", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "f1", resp["fingerprint_id"])
	assert.Equal(t, float64(2), resp["version"])
}

func TestRecompute_NoFingerprint(t *testing.T) {
	svc := &mockService{profile: &services.ProfileView{State: services.StateAccumulating}}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.Recompute(rr, ownerRequest(http.MethodPost, "/recompute", ""))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecompute_InFlight(t *testing.T) {
	svc := &mockService{
		profile:    &services.ProfileView{FingerprintID: "f1", State: services.StateComputing},
		computeErr: services.ErrComputationInFlight,
	}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.Recompute(rr, ownerRequest(http.MethodPost, "/recompute", ""))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRecompute_InsufficientSamples(t *testing.T) {
	svc := &mockService{
		profile:    &services.ProfileView{FingerprintID: "f1", State: services.StateAccumulating},
		computeErr: services.ErrInsufficientSamples,
	}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.Recompute(rr, ownerRequest(http.MethodPost, "/recompute", ""))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRecompute_ComputeErrorBody(t *testing.T) {
	svc := &mockService{
		profile: &services.ProfileView{FingerprintID: "f1", State: services.StateActive},
		computeErr: &services.ComputeError{
			FingerprintID: "f1",
			LastVersion:   3,
			Err:           assert.AnError,
		},
	}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.Recompute(rr, ownerRequest(http.MethodPost, "/recompute", ""))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "computation failed", resp["error"])
	assert.Equal(t, "f1", resp["fingerprint_id"])
	assert.Equal(t, float64(3), resp["last_version"])
}

// --- read endpoints ---

func TestGetProfile_CacheMissThenHit(t *testing.T) {
	svc := &mockService{
		profile: &services.ProfileView{State: services.StateActive, Version: 1},
	}
	cache := newMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.GetProfile(rr, ownerRequest(http.MethodGet, "/profile", ""))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	cached, ok := cache.Get(services.ProfileCacheKey("o1"))
	require.True(t, ok)
	assert.Equal(t, rr.Body.Bytes(), cached)

	// Second read is served from cache even if the service changes.
	svc.profile = nil
	svc.profileErr = assert.AnError
	rr = httptest.NewRecorder()
	ac.GetProfile(rr, ownerRequest(http.MethodGet, "/profile", ""))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, cached, rr.Body.Bytes())
}

func TestListSamples(t *testing.T) {
	svc := &mockService{samples: []*models.Sample{
		{ID: "s1", OwnerID: "o1", WordCount: 12, Source: models.SourceManual},
	}}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.ListSamples(rr, ownerRequest(http.MethodGet, "/list", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got []models.Sample
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
}

func TestListSamples_MissingOwner(t *testing.T) {
	svc := &mockService{listErr: services.ErrMissingOwner}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.ListSamples(rr, ownerRequest(http.MethodGet, "/list", ""))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetTraits_NotFound(t *testing.T) {
	svc := &mockService{traitsErr: services.ErrNoFingerprint}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.GetTraits(rr, ownerRequest(http.MethodGet, "/traits", ""))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetTraits_ErrorNotCached(t *testing.T) {
	svc := &mockService{traitsErr: services.ErrNoFingerprint}
	cache := newMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.GetTraits(rr, ownerRequest(http.MethodGet, "/traits", ""))

	_, ok := cache.Get(services.TraitsCacheKey("o1"))
	assert.False(t, ok)
}

func TestGetTraits_ByVersion(t *testing.T) {
	svc := &mockService{traitSet: &models.TraitSet{FingerprintID: "f1", Version: 2}}
	cache := newMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.GetTraits(rr, ownerRequest(http.MethodGet, "/traits?version=2", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, svc.traitsAtVersion)

	// Historical reads never populate the cache.
	_, ok := cache.Get(services.TraitsCacheKey("o1"))
	assert.False(t, ok)
}

func TestGetTraits_ByVersionNotFound(t *testing.T) {
	svc := &mockService{traitsErr: services.ErrNoFingerprint}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.GetTraits(rr, ownerRequest(http.MethodGet, "/traits?version=9", ""))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, 9, svc.traitsAtVersion)
}

func TestGetConstraints(t *testing.T) {
	svc := &mockService{
		constraints: &services.Constraints{
			FingerprintID: "f1",
			Version:       2,
			Thresholds: map[string]models.Threshold{
				"avg_sentence_length": {Min: 10, Max: 18},
			},
			ActiveLocks: []string{models.LockTone},
		},
	}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.GetConstraints(rr, ownerRequest(http.MethodGet, "/constraints", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp services.Constraints
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Version)
	assert.Equal(t, []string{models.LockTone}, resp.ActiveLocks)
}

func TestGetCoverage(t *testing.T) {
	svc := &mockService{coverage: models.NewCoverage(6, 900)}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.GetCoverage(rr, ownerRequest(http.MethodGet, "/coverage", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp models.Coverage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.TierMedium, resp.Tier)
	assert.Equal(t, 6, resp.SampleCount)
}

// --- SetLock tests ---

func TestSetLock_Valid(t *testing.T) {
	svc := &mockService{
		lock: &models.Lock{OwnerID: "o1", Category: models.LockTone, Enabled: true},
	}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.SetLock(rr, ownerRequest(http.MethodPost, "/locks", `{"category":"tone","enabled":true}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp models.Lock
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.LockTone, resp.Category)
	assert.True(t, resp.Enabled)
}

func TestSetLock_InvalidCategory(t *testing.T) {
	svc := &mockService{lockErr: services.ErrInvalidLockCategory}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.SetLock(rr, ownerRequest(http.MethodPost, "/locks", `{"category":"volume","enabled":true}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetLock_InvalidJSON(t *testing.T) {
	svc := &mockService{}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.SetLock(rr, ownerRequest(http.MethodPost, "/locks", "{"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- DeleteOwner tests ---

func TestDeleteOwner_Success(t *testing.T) {
	svc := &mockService{}
	ac := newTestController(svc, newMockCache())

	rr := httptest.NewRecorder()
	ac.DeleteOwner(rr, ownerRequest(http.MethodDelete, "/owner", ""))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"o1"}, svc.deleted)
}

func TestDeleteOwner_MissingOwner(t *testing.T) {
	svc := &mockService{deleteErr: services.ErrMissingOwner}
	ac := newTestController(svc, newMockCache())

	req := httptest.NewRequest(http.MethodDelete, "/owner", nil)
	rr := httptest.NewRecorder()
	ac.DeleteOwner(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
