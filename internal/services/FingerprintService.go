package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"vfd/internal/analysis"
	"vfd/internal/events"
	"vfd/internal/models"
	"vfd/internal/providers"
	"vfd/internal/semantic"
	"vfd/internal/storage"
	"vfd/internal/structures"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProfileView states as rendered by the profile UI. The four are never
// conflated: still accumulating evidence, computation in progress, active
// with version N, and last computation failed while reads still use the
// prior version.
const (
	StateAccumulating = "accumulating"
	StateComputing    = "computing"
	StateActive       = "active"
	StateDegraded     = "degraded"
	StateFailed       = "failed"
)

type ProfileView struct {
	State         string          `json:"state"`
	FingerprintID string          `json:"fingerprint_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	Version       int             `json:"version"`
	SamplesNeeded int             `json:"samples_needed,omitempty"`
	Coverage      models.Coverage `json:"coverage"`
	Summary       string          `json:"summary,omitempty"`
}

// Constraints is the stable "current effective constraints" read consumed
// by the rewrite service: thresholds of the authoritative version plus the
// enabled locks.
type Constraints struct {
	FingerprintID string                      `json:"fingerprint_id"`
	Version       int                         `json:"version"`
	Thresholds    map[string]models.Threshold `json:"thresholds"`
	ActiveLocks   []string                    `json:"active_locks"`
}

type FingerprintServiceInterface interface {
	AddSample(ctx context.Context, ownerID, text, source string) (*models.Sample, error)
	ListSamples(ctx context.Context, ownerID string) ([]*models.Sample, error)
	Compute(ctx context.Context, fingerprintID string) (*models.TraitSet, error)
	RecomputeStale(ctx context.Context) int
	GetProfile(ctx context.Context, ownerID string) (*ProfileView, error)
	GetTraits(ctx context.Context, ownerID string) (*models.TraitSet, error)
	GetTraitsAt(ctx context.Context, ownerID string, version int) (*models.TraitSet, error)
	GetConstraints(ctx context.Context, ownerID string) (*Constraints, error)
	GetCoverage(ctx context.Context, ownerID string) (models.Coverage, error)
	SetLock(ctx context.Context, ownerID, category string, enabled bool) (*models.Lock, error)
	DeleteOwner(ctx context.Context, ownerID string) error
}

type FingerprintService struct {
	config    *structures.Config
	store     storage.StoreInterface
	extractor *semantic.Extractor
	bus       *events.Bus
	cache     providers.CacheProviderInterface
	metrics   providers.MetricsProviderInterface
	logger    providers.Logger
	policy    analysis.TolerancePolicy
}

func NewFingerprintService(
	config *structures.Config,
	store storage.StoreInterface,
	extractor *semantic.Extractor,
	bus *events.Bus,
	cache providers.CacheProviderInterface,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) FingerprintServiceInterface {
	return &FingerprintService{
		config:    config,
		store:     store,
		extractor: extractor,
		bus:       bus,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		policy:    analysis.DefaultTolerancePolicy(config.Analysis.ToleranceFactor),
	}
}

// Cache keys for read-side responses, invalidated on change.
func ProfileCacheKey(ownerID string) string     { return "profile:" + ownerID }
func TraitsCacheKey(ownerID string) string      { return "traits:" + ownerID }
func ConstraintsCacheKey(ownerID string) string { return "constraints:" + ownerID }
func CoverageCacheKey(ownerID string) string    { return "coverage:" + ownerID }

func (fs *FingerprintService) invalidate(ownerID string) {
	fs.cache.Del(ProfileCacheKey(ownerID))
	fs.cache.Del(TraitsCacheKey(ownerID))
	fs.cache.Del(ConstraintsCacheKey(ownerID))
	fs.cache.Del(CoverageCacheKey(ownerID))
}

// AddSample stores one immutable writing excerpt and drives the auto-creation
// trigger: once the owner's sample count reaches the minimum and no active
// fingerprint exists, a pending fingerprint is created and computed
// immediately. Samples added to an already-active fingerprint are attached
// for future computation without triggering one.
func (fs *FingerprintService) AddSample(ctx context.Context, ownerID, text, source string) (*models.Sample, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySample
	}
	if source != models.SourceManual && source != models.SourceFeedback {
		source = models.SourceManual
	}

	fp, err := fs.store.FingerprintByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	sample := &models.Sample{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Text:      text,
		WordCount: len(strings.Fields(text)),
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	// A computing fingerprint adopts the sample too: the in-flight cycle read
	// its corpus already, but the attachment keeps the sample visible to the
	// stale sweep and to every later computation.
	if fp != nil && (fp.Status == models.StatusActive || fp.Status == models.StatusComputing) {
		sample.FingerprintID = fp.ID
	}

	if err = fs.store.CreateSample(ctx, sample); err != nil {
		return nil, err
	}
	fs.metrics.IncSamplesIngested(sample.Source)
	fs.invalidate(ownerID)

	fs.bus.EmitNow(events.TypeSampleCreated, events.SampleCreated{
		SampleID:      sample.ID,
		OwnerID:       ownerID,
		FingerprintID: sample.FingerprintID,
		Source:        sample.Source,
		WordCount:     sample.WordCount,
	})
	fs.bus.Emit(events.TypeSampleAnalyzed, events.SampleAnalyzed{
		SampleID: sample.ID,
		OwnerID:  ownerID,
	})

	fs.maybeAutoCompute(ctx, ownerID, fp)

	return sample, nil
}

// ListSamples returns the owner's evidence base without the raw text; the
// listing is metadata for the analysis UI, not a text export.
func (fs *FingerprintService) ListSamples(ctx context.Context, ownerID string) ([]*models.Sample, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	samples, err := fs.store.SamplesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Sample, len(samples))
	for i, s := range samples {
		c := *s
		c.Text = ""
		out[i] = &c
	}
	return out, nil
}

// maybeAutoCompute runs the auto-creation trigger after a sample lands. A
// failed automatic computation does not fail the sample submission: the
// fingerprint is left queryable in failed state and the error is logged.
func (fs *FingerprintService) maybeAutoCompute(ctx context.Context, ownerID string, fp *models.VoiceFingerprint) {
	if fp != nil && (fp.Status == models.StatusActive || fp.Status == models.StatusComputing) {
		return
	}

	count, _, err := fs.store.CountSamplesByOwner(ctx, ownerID)
	if err != nil {
		fs.logger.Errorf(providers.TypeCompute, "Sample count for %s: %s", ownerID, err)
		return
	}
	if count < fs.config.Analysis.MinSamples {
		return
	}

	if fp == nil {
		fp = &models.VoiceFingerprint{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			Status:    models.StatusPending,
			Version:   0,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err = fs.store.CreateFingerprint(ctx, fp); err != nil {
			fs.logger.Errorf(providers.TypeCompute, "Auto-create fingerprint for %s: %s", ownerID, err)
			return
		}
		fs.logger.Infof(providers.TypeCompute, "Auto-created fingerprint %s for %s", fp.ID, ownerID)
	}

	if err = fs.store.AttachSamples(ctx, ownerID, fp.ID); err != nil {
		fs.logger.Errorf(providers.TypeCompute, "Attach samples to %s: %s", fp.ID, err)
		return
	}

	if _, err = fs.Compute(ctx, fp.ID); err != nil {
		fs.logger.Errorf(providers.TypeCompute, "Scheduled computation for %s: %s", fp.ID, err)
	}
}

// Compute runs one full computation cycle for a fingerprint. Cycles are
// strictly serialized per fingerprint: the claim is an atomic conditional
// status update at the storage layer, and a second request while one is in
// flight is rejected, never run concurrently. There is no mid-flight
// cancellation; once claimed the cycle runs to completion or failure.
func (fs *FingerprintService) Compute(ctx context.Context, fingerprintID string) (*models.TraitSet, error) {
	fp, err := fs.store.FingerprintByID(ctx, fingerprintID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoFingerprint
		}
		return nil, err
	}

	samples, err := fs.store.SamplesByFingerprint(ctx, fingerprintID)
	if err != nil {
		return nil, err
	}
	if len(samples) < fs.config.Analysis.MinSamples {
		fs.metrics.IncComputeTotal("rejected")
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples,
			len(samples), fs.config.Analysis.MinSamples)
	}

	claimed, err := fs.store.ClaimComputation(ctx, fingerprintID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		fs.metrics.IncComputeTotal("rejected")
		return nil, ErrComputationInFlight
	}
	// The profile must report computing as soon as the claim lands; cached
	// reads from the prior state are stale now.
	ownerID := fp.OwnerID
	fs.invalidate(ownerID)

	// Authoritative last-good version: re-read after the claim, since another
	// cycle may have completed between the first read and the claim.
	fp, err = fs.store.FingerprintByID(ctx, fingerprintID)
	if err != nil {
		return nil, fs.fail(ctx, fingerprintID, ownerID, 0, err)
	}

	start := time.Now()
	ts, err := fs.runPipeline(ctx, fp, samples)
	if err != nil {
		return nil, fs.fail(ctx, fingerprintID, ownerID, fp.Version, err)
	}

	if err = fs.store.SaveTraitSet(ctx, ts); err != nil {
		return nil, fs.fail(ctx, fingerprintID, ownerID, fp.Version, err)
	}
	ok, err := fs.store.CompleteComputation(ctx, fingerprintID, ts.Version)
	if err != nil || !ok {
		if err == nil {
			err = errors.New("fingerprint left computing state unexpectedly")
		}
		return nil, fs.fail(ctx, fingerprintID, ownerID, fp.Version, err)
	}

	fs.metrics.ObserveComputeDuration(time.Since(start))
	fs.metrics.IncComputeTotal("success")
	fs.invalidate(fp.OwnerID)

	sampleCount := len(samples)
	wordCount := 0
	for _, s := range samples {
		wordCount += s.WordCount
	}
	coverage := models.NewCoverage(sampleCount, wordCount)

	fs.bus.Emit(events.TypeProfileUpdated, events.ProfileUpdated{
		FingerprintID: fingerprintID,
		OwnerID:       fp.OwnerID,
		Version:       ts.Version,
		Coverage:      coverage,
		Scores: map[string]float64{
			"vocabulary_diversity": ts.StylometricMetrics[analysis.MetricVocabularyDiversity],
			"semantic_consistency": ts.SemanticSignature.Consistency,
		},
		Reason: "computation",
	})
	fs.bus.Emit(events.TypeConstraintsChanged, events.ConstraintsChanged{
		FingerprintID: fingerprintID,
		OwnerID:       fp.OwnerID,
		Version:       ts.Version,
		ActiveLocks:   fs.activeLocks(ctx, fp.OwnerID),
		Reason:        "recompute",
	})

	fs.logger.Infof(providers.TypeCompute, "Fingerprint %s active at version %d (%d samples, %d skipped)",
		fingerprintID, ts.Version, sampleCount, len(ts.SkippedSamples))

	return ts, nil
}

// runPipeline executes extraction and synthesis. Stylometric and semantic
// extraction run as concurrent operations, both awaited before synthesis;
// neither mutates shared state. A panic in any stage is converted into the
// cycle's failure.
func (fs *FingerprintService) runPipeline(ctx context.Context, fp *models.VoiceFingerprint, samples []*models.Sample) (ts *models.TraitSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			ts = nil
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	var corpus strings.Builder
	texts := make([]semantic.SampleText, len(samples))
	for i, s := range samples {
		if i > 0 {
			corpus.WriteString("\n\n")
		}
		corpus.WriteString(s.Text)
		texts[i] = semantic.SampleText{ID: s.ID, Text: s.Text}
	}

	var metrics analysis.Metrics
	var signature models.SemanticSignature
	var skipped []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics = analysis.Extract(corpus.String(), fs.config.Analysis.MinCorpusTokens)
		return nil
	})
	g.Go(func() error {
		signature, skipped = fs.extractor.Extract(gctx, texts)
		return nil
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	synth := analysis.Synthesize(metrics, signature, fs.policy)

	return &models.TraitSet{
		FingerprintID:      fp.ID,
		Version:            fp.Version + 1,
		StylometricMetrics: metrics.Values(),
		SemanticSignature:  signature,
		SignatureTraits:    synth.SignatureTraits,
		Pitfalls:           synth.Pitfalls,
		TargetThresholds:   synth.TargetThresholds,
		Summary:            synth.Summary,
		SkippedSamples:     skipped,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

// fail transitions computing→failed and wraps the cause in the typed
// ComputeError. The prior trait set, if any, stays valid for reads; cached
// reads from before the transition are dropped.
func (fs *FingerprintService) fail(ctx context.Context, fingerprintID, ownerID string, lastVersion int, cause error) error {
	if _, ferr := fs.store.FailComputation(ctx, fingerprintID); ferr != nil {
		fs.logger.Errorf(providers.TypeCompute, "Marking %s failed: %s", fingerprintID, ferr)
	}
	fs.invalidate(ownerID)
	fs.metrics.IncComputeTotal("failed")
	return &ComputeError{FingerprintID: fingerprintID, LastVersion: lastVersion, Err: cause}
}

// RecomputeStale runs a computation for every active fingerprint with
// samples newer than its latest trait set. Invoked by the scheduler, never
// on every sample, to avoid update storms. Returns the number of successful
// recomputations.
func (fs *FingerprintService) RecomputeStale(ctx context.Context) int {
	ids, err := fs.store.StaleActiveFingerprints(ctx)
	if err != nil {
		fs.logger.Errorf(providers.TypeCompute, "Stale fingerprint scan: %s", err)
		return 0
	}

	done := 0
	for _, id := range ids {
		if _, err := fs.Compute(ctx, id); err != nil {
			if errors.Is(err, ErrComputationInFlight) || errors.Is(err, ErrInsufficientSamples) {
				continue
			}
			fs.logger.Errorf(providers.TypeCompute, "Scheduled recompute for %s: %s", id, err)
			continue
		}
		done++
	}
	return done
}

func (fs *FingerprintService) GetProfile(ctx context.Context, ownerID string) (*ProfileView, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}

	coverage, err := fs.GetCoverage(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	fp, err := fs.store.FingerprintByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		needed := fs.config.Analysis.MinSamples - coverage.SampleCount
		if needed < 0 {
			needed = 0
		}
		return &ProfileView{
			State:         StateAccumulating,
			SamplesNeeded: needed,
			Coverage:      coverage,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	view := &ProfileView{
		FingerprintID: fp.ID,
		Status:        fp.Status,
		Version:       fp.Version,
		Coverage:      coverage,
	}

	switch fp.Status {
	case models.StatusPending:
		view.State = StateAccumulating
		needed := fs.config.Analysis.MinSamples - coverage.SampleCount
		if needed > 0 {
			view.SamplesNeeded = needed
		}
	case models.StatusComputing:
		view.State = StateComputing
	case models.StatusActive:
		view.State = StateActive
	case models.StatusFailed:
		if fp.Version >= 1 {
			view.State = StateDegraded
		} else {
			view.State = StateFailed
		}
	}

	if fp.Version >= 1 {
		if ts, terr := fs.store.TraitSetByVersion(ctx, fp.ID, fp.Version); terr == nil {
			view.Summary = ts.Summary
		}
	}

	return view, nil
}

// GetTraits returns the authoritative trait set: the latest successful
// version, valid for reads even while the fingerprint is failed.
func (fs *FingerprintService) GetTraits(ctx context.Context, ownerID string) (*models.TraitSet, error) {
	fp, err := fs.store.FingerprintByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoFingerprint
	}
	if err != nil {
		return nil, err
	}
	if fp.Version < 1 {
		return nil, ErrNoFingerprint
	}
	ts, err := fs.store.TraitSetByVersion(ctx, fp.ID, fp.Version)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoFingerprint
	}
	return ts, err
}

// GetTraitsAt reads a specific historical trait set version.
func (fs *FingerprintService) GetTraitsAt(ctx context.Context, ownerID string, version int) (*models.TraitSet, error) {
	if version < 1 {
		return nil, ErrNoFingerprint
	}
	fp, err := fs.store.FingerprintByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoFingerprint
	}
	if err != nil {
		return nil, err
	}
	ts, err := fs.store.TraitSetByVersion(ctx, fp.ID, version)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoFingerprint
	}
	return ts, err
}

func (fs *FingerprintService) GetConstraints(ctx context.Context, ownerID string) (*Constraints, error) {
	ts, err := fs.GetTraits(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &Constraints{
		FingerprintID: ts.FingerprintID,
		Version:       ts.Version,
		Thresholds:    ts.TargetThresholds,
		ActiveLocks:   fs.activeLocks(ctx, ownerID),
	}, nil
}

func (fs *FingerprintService) activeLocks(ctx context.Context, ownerID string) []string {
	locks, err := fs.store.LocksByOwner(ctx, ownerID)
	if err != nil {
		fs.logger.Errorf(providers.TypeApp, "Locks for %s: %s", ownerID, err)
		return []string{}
	}
	active := make([]string, 0, len(locks))
	for _, l := range locks {
		if l.Enabled {
			active = append(active, l.Category)
		}
	}
	return active
}

func (fs *FingerprintService) GetCoverage(ctx context.Context, ownerID string) (models.Coverage, error) {
	count, words, err := fs.store.CountSamplesByOwner(ctx, ownerID)
	if err != nil {
		return models.Coverage{}, err
	}
	return models.NewCoverage(count, words), nil
}

// SetLock toggles a voice lock. The change is delivered immediately: a user
// flipping a lock expects instant UI feedback.
func (fs *FingerprintService) SetLock(ctx context.Context, ownerID, category string, enabled bool) (*models.Lock, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	if !models.ValidLockCategory(category) {
		return nil, ErrInvalidLockCategory
	}

	lock := &models.Lock{
		OwnerID:   ownerID,
		Category:  category,
		Enabled:   enabled,
		UpdatedAt: time.Now().UTC(),
	}
	if err := fs.store.UpsertLock(ctx, lock); err != nil {
		return nil, err
	}
	fs.cache.Del(ConstraintsCacheKey(ownerID))

	version := 0
	fingerprintID := ""
	if fp, err := fs.store.FingerprintByOwner(ctx, ownerID); err == nil {
		version = fp.Version
		fingerprintID = fp.ID
	}

	fs.bus.EmitNow(events.TypeConstraintsChanged, events.ConstraintsChanged{
		FingerprintID: fingerprintID,
		OwnerID:       ownerID,
		Version:       version,
		ActiveLocks:   fs.activeLocks(ctx, ownerID),
		Reason:        "lock." + category,
	})

	return lock, nil
}

// DeleteOwner cascades deletion of the owner's fingerprints, trait sets,
// samples and locks.
func (fs *FingerprintService) DeleteOwner(ctx context.Context, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrMissingOwner
	}
	if err := fs.store.DeleteOwner(ctx, ownerID); err != nil {
		return err
	}
	fs.invalidate(ownerID)
	fs.logger.Infof(providers.TypeApp, "Deleted all data for owner %s", ownerID)
	return nil
}
