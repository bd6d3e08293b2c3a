package semantic

import (
	"context"
	"errors"
	"os"
	"strings"
	"vfd/internal/providers"
	"vfd/internal/structures"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder is the narrow contract on the external text-understanding
// service: one vector per input, index-aligned.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ErrUnavailable marks the understanding service as not reachable at all,
// as opposed to a transient per-call failure.
var ErrUnavailable = errors.New("semantic service unavailable")

type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder builds the embeddings client from config. When the semantic
// stage is disabled or no API key is present, a disabled embedder is
// returned and every extraction falls back to the default signature.
func NewEmbedder(conf *structures.Config, logger providers.Logger) Embedder {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if !conf.Semantic.Enabled || apiKey == "" {
		logger.Infof(providers.TypeApp, "Semantic service disabled, signatures fall back to default")
		return &disabledEmbedder{}
	}

	cfg := openai.DefaultConfig(apiKey)
	if conf.Semantic.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(conf.Semantic.BaseURL, "/")
	}

	logger.Infof(providers.TypeApp, "Semantic service enabled, model=%s", conf.Semantic.Model)

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(conf.Semantic.Model),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: clean,
		Model: e.model,
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

type disabledEmbedder struct{}

func (d *disabledEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrUnavailable
}
