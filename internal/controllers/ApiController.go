package controllers

import (
	"errors"
	"net/http"
	"vfd/internal/providers"
	"vfd/internal/services"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ownerHeader carries the authenticated owner identifier supplied by the
// identity collaborator. It is trusted as given; no authentication happens
// here.
const ownerHeader = "X-Owner-ID"

type ApiController struct {
	logger  providers.Logger
	service services.FingerprintServiceInterface
	cache   providers.CacheProviderInterface
	metrics providers.MetricsProviderInterface
}

func NewApiController(logger providers.Logger, service services.FingerprintServiceInterface, cache providers.CacheProviderInterface, metrics providers.MetricsProviderInterface) *ApiController {
	return &ApiController{
		logger:  logger,
		service: service,
		cache:   cache,
		metrics: metrics,
	}
}

func ownerID(r *http.Request) string {
	return r.Header.Get(ownerHeader)
}

func (ac *ApiController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, compute func() (any, error)) {
	if data, ok := ac.cache.Get(cacheKey); ok {
		ac.metrics.IncCacheHits()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	ac.metrics.IncCacheMisses()

	result, err := compute()
	if err != nil {
		ac.writeError(w, err)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ac.cache.Set(cacheKey, gson)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func (ac *ApiController) writeJSON(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func (ac *ApiController) writeError(w http.ResponseWriter, err error) {
	var ce *services.ComputeError
	switch {
	case errors.Is(err, services.ErrMissingOwner),
		errors.Is(err, services.ErrEmptySample),
		errors.Is(err, services.ErrInvalidLockCategory):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNoFingerprint):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrComputationInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInsufficientSamples):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &ce):
		ac.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":          "computation failed",
			"fingerprint_id": ce.FingerprintID,
			"last_version":   ce.LastVersion,
		})
	default:
		ac.logger.Errorf(providers.TypeApp, "Internal error: %s", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

type submitSampleRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

func (ac *ApiController) SubmitSample(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var payload submitSampleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	sample, err := ac.service.AddSample(r.Context(), ownerID(r), payload.Text, payload.Source)
	if err != nil {
		ac.writeError(w, err)
		return
	}
	// The response omits the raw text; the caller already has it.
	sample.Text = ""
	ac.writeJSON(w, http.StatusCreated, sample)
}

func (ac *ApiController) ListSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := ac.service.ListSamples(r.Context(), ownerID(r))
	if err != nil {
		ac.writeError(w, err)
		return
	}
	ac.writeJSON(w, http.StatusOK, samples)
}

func (ac *ApiController) Recompute(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	profile, err := ac.service.GetProfile(r.Context(), owner)
	if err != nil {
		ac.writeError(w, err)
		return
	}
	if profile.FingerprintID == "" {
		ac.writeError(w, services.ErrNoFingerprint)
		return
	}

	ts, err := ac.service.Compute(r.Context(), profile.FingerprintID)
	if err != nil {
		ac.writeError(w, err)
		return
	}
	ac.writeJSON(w, http.StatusOK, map[string]any{
		"fingerprint_id": ts.FingerprintID,
		"version":        ts.Version,
		"summary":        ts.Summary,
	})
}

func (ac *ApiController) GetProfile(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	ac.serveFromCacheOrCompute(w, services.ProfileCacheKey(owner), func() (any, error) {
		return ac.service.GetProfile(r.Context(), owner)
	})
}

func (ac *ApiController) GetTraits(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	// Historical versions bypass the cache; only the latest set is cached.
	if v := r.URL.Query().Get("version"); v != "" {
		ts, err := ac.service.GetTraitsAt(r.Context(), owner, cast.ToInt(v))
		if err != nil {
			ac.writeError(w, err)
			return
		}
		ac.writeJSON(w, http.StatusOK, ts)
		return
	}
	ac.serveFromCacheOrCompute(w, services.TraitsCacheKey(owner), func() (any, error) {
		return ac.service.GetTraits(r.Context(), owner)
	})
}

func (ac *ApiController) GetConstraints(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	ac.serveFromCacheOrCompute(w, services.ConstraintsCacheKey(owner), func() (any, error) {
		return ac.service.GetConstraints(r.Context(), owner)
	})
}

func (ac *ApiController) GetCoverage(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	ac.serveFromCacheOrCompute(w, services.CoverageCacheKey(owner), func() (any, error) {
		return ac.service.GetCoverage(r.Context(), owner)
	})
}

type setLockRequest struct {
	Category string `json:"category"`
	Enabled  bool   `json:"enabled"`
}

func (ac *ApiController) SetLock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var payload setLockRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	lock, err := ac.service.SetLock(r.Context(), ownerID(r), payload.Category, payload.Enabled)
	if err != nil {
		ac.writeError(w, err)
		return
	}
	ac.writeJSON(w, http.StatusOK, lock)
}

func (ac *ApiController) DeleteOwner(w http.ResponseWriter, r *http.Request) {
	if err := ac.service.DeleteOwner(r.Context(), ownerID(r)); err != nil {
		ac.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
