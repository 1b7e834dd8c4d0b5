package embedding

import (
	"context"
	"fmt"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"
)

const DefaultLocalModel = "Qwen/Qwen3-Embedding-0.6B"

// LocalEmbeddings runs an embedding model in-process.
type LocalEmbeddings struct {
	model  *embedder.Embedder
	name   string
	loaded bool
}

// NewLocalEmbeddings loads model, downloading it on first use.
func NewLocalEmbeddings(model string) (*LocalEmbeddings, error) {
	if model == "" {
		model = DefaultLocalModel
	}

	m, err := embedder.NewEmbedder(model)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model %s: %w", model, err)
	}

	return &LocalEmbeddings{model: m, name: model, loaded: true}, nil
}

func (l *LocalEmbeddings) Model() string { return l.name }

func (l *LocalEmbeddings) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	if !l.loaded {
		return nil, fmt.Errorf("embedding model %s is closed", l.name)
	}

	// The model does not take a context; honour cancellation before the call.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors32, err := l.model.Embed(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	vectors := make([][]float64, len(vectors32))
	for i, v := range vectors32 {
		vectors[i] = widen(v)
	}

	if err := checkAligned("local:"+l.name, vectors, len(texts)); err != nil {
		return nil, err
	}

	return vectors, nil
}

func (l *LocalEmbeddings) Close() error {
	if !l.loaded {
		return nil
	}

	l.model.Close()
	l.loaded = false

	return nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}

	return out
}
