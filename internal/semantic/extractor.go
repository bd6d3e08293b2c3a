package semantic

import (
	"context"
	"errors"
	"math"
	"time"
	"vfd/internal/models"
	"vfd/internal/providers"
	"vfd/internal/structures"
)

// SampleText pairs a sample id with its raw text. Sample boundaries matter
// here, unlike stylometry: the signature measures cross-sample consistency.
type SampleText struct {
	ID   string
	Text string
}

type Extractor struct {
	embedder Embedder
	timeout  time.Duration
	retries  int
	logger   providers.Logger
}

func NewExtractor(conf *structures.Config, embedder Embedder, logger providers.Logger) *Extractor {
	return &Extractor{
		embedder: embedder,
		timeout:  conf.Semantic.CallTimeout,
		retries:  conf.Semantic.MaxRetries,
		logger:   logger,
	}
}

// DefaultSignature is the documented fallback used when the understanding
// service is fully unavailable: no centroid, zero consistency, Fallback set.
func DefaultSignature() models.SemanticSignature {
	return models.SemanticSignature{Centroid: nil, Consistency: 0, Fallback: true}
}

// Extract produces the semantic signature over the given samples. One
// batched call first; on total batch failure each sample is retried
// individually so partial service degradation degrades the signature instead
// of failing the computation. The returned skipped list names samples with
// no usable embedding. Never blocks beyond the per-call timeout × retry
// budget; a fully unavailable service yields DefaultSignature with every
// sample skipped.
func (e *Extractor) Extract(ctx context.Context, samples []SampleText) (models.SemanticSignature, []string) {
	if len(samples) == 0 {
		return DefaultSignature(), nil
	}

	texts := make([]string, len(samples))
	for i, s := range samples {
		texts[i] = s.Text
	}

	vectors, err := e.callWithRetry(ctx, texts)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			e.logger.Warnf(providers.TypeCompute, "Batched embedding call failed, retrying per sample: %s", err)
			vectors = e.embedIndividually(ctx, texts)
		} else {
			vectors = make([][]float32, len(samples))
		}
	}

	processed := make([][]float32, 0, len(samples))
	skipped := make([]string, 0)
	dim := 0
	for i, vec := range vectors {
		if len(vec) == 0 || (dim != 0 && len(vec) != dim) {
			skipped = append(skipped, samples[i].ID)
			continue
		}
		dim = len(vec)
		processed = append(processed, vec)
	}

	if len(processed) == 0 {
		return DefaultSignature(), skipped
	}

	centroid := meanVector(processed, dim)
	return models.SemanticSignature{
		Centroid:    centroid,
		Consistency: consistency(processed, centroid),
		Fallback:    false,
	}, skipped
}

func (e *Extractor) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		vectors, err := e.embedder.Embed(callCtx, texts)
		cancel()
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *Extractor) embedIndividually(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vectors, err := e.callWithRetry(ctx, []string{t})
		if err != nil || len(vectors) != 1 {
			continue
		}
		out[i] = vectors[0]
	}
	return out
}

func meanVector(vectors [][]float32, dim int) []float32 {
	centroid := make([]float32, dim)
	for _, vec := range vectors {
		for i, v := range vec {
			centroid[i] += v
		}
	}
	n := float32(len(vectors))
	for i := range centroid {
		centroid[i] /= n
	}
	return centroid
}

// consistency is the mean cosine similarity of each vector to the centroid,
// clamped to [0,1]. A single sample is perfectly consistent with itself.
func consistency(vectors [][]float32, centroid []float32) float64 {
	if len(vectors) == 1 {
		return 1.0
	}
	var sum float64
	for _, vec := range vectors {
		sum += cosine(vec, centroid)
	}
	v := sum / float64(len(vectors))
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
