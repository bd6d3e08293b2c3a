package semantic

import (
	"context"
	"errors"
	"testing"
	"time"
	"vfd/internal/providers"
	"vfd/internal/structures"
	"vfd/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(embedder Embedder) *Extractor {
	conf := &structures.Config{
		Semantic: structures.SemanticConfig{
			CallTimeout: 100 * time.Millisecond,
			MaxRetries:  0,
		},
	}
	return NewExtractor(conf, embedder, &testutil.MockLogger{})
}

func samples(n int) []SampleText {
	out := make([]SampleText, n)
	for i := range out {
		out[i] = SampleText{ID: string(rune('a' + i)), Text: "sample text"}
	}
	return out
}

func TestExtract_NoSamples(t *testing.T) {
	ex := newTestExtractor(&testutil.MockEmbedder{})
	sig, skipped := ex.Extract(context.Background(), nil)

	assert.Equal(t, DefaultSignature(), sig)
	assert.Empty(t, skipped)
}

func TestExtract_SingleSample(t *testing.T) {
	embedder := &testutil.MockEmbedder{Vectors: [][]float32{{1, 2, 3}}}
	ex := newTestExtractor(embedder)

	sig, skipped := ex.Extract(context.Background(), samples(1))

	require.Empty(t, skipped)
	assert.False(t, sig.Fallback)
	assert.Equal(t, []float32{1, 2, 3}, sig.Centroid)
	assert.Equal(t, 1.0, sig.Consistency)
}

func TestExtract_IdenticalVectorsPerfectConsistency(t *testing.T) {
	embedder := &testutil.MockEmbedder{Vectors: [][]float32{{1, 0}, {1, 0}, {1, 0}}}
	ex := newTestExtractor(embedder)

	sig, skipped := ex.Extract(context.Background(), samples(3))

	require.Empty(t, skipped)
	assert.Equal(t, []float32{1, 0}, sig.Centroid)
	assert.InDelta(t, 1.0, sig.Consistency, 0.0001)
}

func TestExtract_OrthogonalVectorsLowConsistency(t *testing.T) {
	embedder := &testutil.MockEmbedder{Vectors: [][]float32{{1, 0}, {0, 1}}}
	ex := newTestExtractor(embedder)

	sig, skipped := ex.Extract(context.Background(), samples(2))

	require.Empty(t, skipped)
	assert.Equal(t, []float32{0.5, 0.5}, sig.Centroid)
	// Each vector sits 45 degrees off the centroid.
	assert.InDelta(t, 0.7071, sig.Consistency, 0.001)
}

func TestExtract_ServiceUnavailable(t *testing.T) {
	embedder := &testutil.MockEmbedder{Err: ErrUnavailable}
	ex := newTestExtractor(embedder)

	sig, skipped := ex.Extract(context.Background(), samples(3))

	assert.Equal(t, DefaultSignature(), sig)
	assert.Equal(t, []string{"a", "b", "c"}, skipped)
	// Unavailability short-circuits: one batch call, no per-sample retries.
	assert.Equal(t, 1, embedder.CallCount())
}

func TestExtract_BatchFailureFallsBackPerSample(t *testing.T) {
	calls := 0
	embedder := &testutil.MockEmbedder{}
	embedder.EmbedFunc = func(inputs []string) ([][]float32, error) {
		calls++
		if len(inputs) > 1 {
			return nil, errors.New("transient")
		}
		// Second individual call fails, the rest succeed.
		if calls == 3 {
			return nil, errors.New("transient")
		}
		return [][]float32{{1, 0}}, nil
	}
	ex := newTestExtractor(embedder)

	sig, skipped := ex.Extract(context.Background(), samples(3))

	assert.False(t, sig.Fallback)
	assert.Equal(t, []string{"b"}, skipped)
	assert.Equal(t, []float32{1, 0}, sig.Centroid)
	assert.InDelta(t, 1.0, sig.Consistency, 0.0001)
}

func TestExtract_DimensionMismatchSkipped(t *testing.T) {
	embedder := &testutil.MockEmbedder{Vectors: [][]float32{{1, 0}, {1, 0, 0}, {0, 1}}}
	ex := newTestExtractor(embedder)

	sig, skipped := ex.Extract(context.Background(), samples(3))

	assert.Equal(t, []string{"b"}, skipped)
	assert.Len(t, sig.Centroid, 2)
}

func TestExtract_EmptyVectorSkipped(t *testing.T) {
	embedder := &testutil.MockEmbedder{Vectors: [][]float32{nil, {1, 0}}}
	ex := newTestExtractor(embedder)

	sig, skipped := ex.Extract(context.Background(), samples(2))

	assert.Equal(t, []string{"a"}, skipped)
	assert.False(t, sig.Fallback)
}

func TestCallWithRetry_RetriesTransientErrors(t *testing.T) {
	calls := 0
	embedder := &testutil.MockEmbedder{}
	embedder.EmbedFunc = func(inputs []string) ([][]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return [][]float32{{1}}, nil
	}
	conf := &structures.Config{
		Semantic: structures.SemanticConfig{
			CallTimeout: 100 * time.Millisecond,
			MaxRetries:  2,
		},
	}
	ex := NewExtractor(conf, embedder, &testutil.MockLogger{})

	vectors, err := ex.callWithRetry(context.Background(), []string{"text"})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, vectors, 1)
}

func TestCallWithRetry_ContextCancelled(t *testing.T) {
	embedder := &testutil.MockEmbedder{Err: errors.New("transient")}
	conf := &structures.Config{
		Semantic: structures.SemanticConfig{
			CallTimeout: 100 * time.Millisecond,
			MaxRetries:  3,
		},
	}
	ex := NewExtractor(conf, embedder, &testutil.MockLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ex.callWithRetry(ctx, []string{"text"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultSignature(t *testing.T) {
	sig := DefaultSignature()
	assert.Nil(t, sig.Centroid)
	assert.Zero(t, sig.Consistency)
	assert.True(t, sig.Fallback)
}

var _ Embedder = (*testutil.MockEmbedder)(nil)

func TestNewEmbedder_DisabledByConfig(t *testing.T) {
	conf := &structures.Config{}
	embedder := NewEmbedder(conf, &testutil.MockLogger{})

	_, err := embedder.Embed(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

var _ providers.Logger = (*testutil.MockLogger)(nil)
