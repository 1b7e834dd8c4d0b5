package embedding

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/samber/lo"

	trolyindex "github.com/mhrlife/troly-index"
)

const (
	DefaultOpenAIModel     = "text-embedding-3-small"
	DefaultOpenAIBatchSize = 256
)

type OpenAIEmbeddings struct {
	client    openai.Client
	model     string
	batchSize int
	endpoint  string
}

// NewOpenAIEmbeddings creates a new OpenAI embeddings client.
// If model is empty, the client's default model is used, then "text-embedding-3-small".
func NewOpenAIEmbeddings(client *trolyindex.Client, model string) *OpenAIEmbeddings {
	if model == "" {
		model = client.DefaultModel()
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIEmbeddings{
		client:    client.GetOpenAI(),
		model:     model,
		batchSize: DefaultOpenAIBatchSize,
		endpoint:  "embeddings",
	}
}

func (o *OpenAIEmbeddings) Model() string { return o.model }

func (o *OpenAIEmbeddings) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	embeddings := make([][]float64, 0, len(texts))
	for _, batch := range lo.Chunk(texts, o.batchSize) {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: batch,
			},
			Model:          o.model,
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			return nil, classifyOpenAIError(o.endpoint, err)
		}

		vectors, err := fromEmbeddingResponse(o.endpoint, resp, len(batch))
		if err != nil {
			return nil, err
		}

		embeddings = append(embeddings, vectors...)
	}

	return embeddings, nil
}
