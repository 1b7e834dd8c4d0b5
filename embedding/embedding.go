package embedding

import (
	"context"
	"fmt"
)

// Client turns an ordered list of texts into one vector per text, in the same order.
type Client interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedText embeds a single text through any Client.
func EmbedText(ctx context.Context, client Client, text string) ([]float64, error) {
	vectors, err := client.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrPayload, len(vectors))
	}

	return vectors[0], nil
}

type indexedVector struct {
	Index  int
	Vector []float64
}

// scatter places index-tagged vectors into a slice of length n. Every slot
// must be filled exactly once.
func scatter(endpoint string, items []indexedVector, n int) ([][]float64, error) {
	if len(items) != n {
		return nil, &PayloadError{
			Endpoint: endpoint,
			Reason:   fmt.Sprintf("expected %d embeddings, got %d", n, len(items)),
		}
	}

	out := make([][]float64, n)
	for _, item := range items {
		if item.Index < 0 || item.Index >= n {
			return nil, &PayloadError{
				Endpoint: endpoint,
				Reason:   fmt.Sprintf("embedding index %d out of range [0, %d)", item.Index, n),
			}
		}
		if out[item.Index] != nil {
			return nil, &PayloadError{
				Endpoint: endpoint,
				Reason:   fmt.Sprintf("duplicate embedding index %d", item.Index),
			}
		}
		if len(item.Vector) == 0 {
			return nil, &PayloadError{
				Endpoint: endpoint,
				Reason:   fmt.Sprintf("embedding %d is missing or empty", item.Index),
			}
		}

		out[item.Index] = item.Vector
	}

	return out, nil
}

// checkAligned validates a positionally aligned batch result.
func checkAligned(endpoint string, vectors [][]float64, n int) error {
	if len(vectors) != n {
		return &PayloadError{
			Endpoint: endpoint,
			Reason:   fmt.Sprintf("expected %d embeddings, got %d", n, len(vectors)),
		}
	}

	for i, v := range vectors {
		if len(v) == 0 {
			return &PayloadError{
				Endpoint: endpoint,
				Reason:   fmt.Sprintf("embedding %d is missing or empty", i),
			}
		}
	}

	return nil
}
