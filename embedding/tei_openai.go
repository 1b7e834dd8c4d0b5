package embedding

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	trolyindex "github.com/mhrlife/troly-index"
)

// openAIRoute speaks TEI's OpenAI-compatible /v1/embeddings endpoint through
// openai-go. The response order is not guaranteed, so results are placed by
// their index field.
type openAIRoute struct {
	url     string
	model   string
	client  openai.Client
	options []option.RequestOption
}

func newOpenAIRoute(c *TEIClient) *openAIRoute {
	kit := trolyindex.NewClient(
		trolyindex.WithoutEnv(),
		trolyindex.WithBaseURL(c.baseURL+"/v1/"),
		trolyindex.WithAPIKey(c.apiKey),
		trolyindex.WithMaxRetries(0),
		trolyindex.WithLogger(c.logger),
		trolyindex.WithLogLevel(slog.LevelDebug),
		trolyindex.WithRequestOptions(option.WithHTTPClient(c.httpClient)),
	)

	r := &openAIRoute{
		url:    c.baseURL + "/v1/embeddings",
		model:  c.model,
		client: kit.GetOpenAI(),
	}
	r.options = append(r.options, option.WithMiddleware(statusMiddleware(r.url)))

	if c.model == "" {
		// TEI serves a single model and accepts requests without one.
		r.options = append(r.options, option.WithJSONDel("model"))
	}

	return r
}

func (r *openAIRoute) endpoint() string { return r.url }

func (r *openAIRoute) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := r.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          r.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}, r.options...)
	if err != nil {
		return nil, classifyOpenAIError(r.url, err)
	}

	return fromEmbeddingResponse(r.url, resp, len(texts))
}

// statusMiddleware turns a non-2xx response into a TransportError before
// openai-go tries to decode a body that TEI may not send as JSON.
func statusMiddleware(endpoint string) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		resp, err := next(req)
		if err != nil || (resp.StatusCode >= 200 && resp.StatusCode <= 299) {
			return resp, err
		}

		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		return nil, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw)),
		}
	}
}

func fromEmbeddingResponse(endpoint string, resp *openai.CreateEmbeddingResponse, n int) ([][]float64, error) {
	items := make([]indexedVector, len(resp.Data))
	for i, data := range resp.Data {
		items[i] = indexedVector{Index: int(data.Index), Vector: data.Embedding}
	}

	vectors, err := scatter(endpoint, items, n)
	if err != nil {
		if pe, ok := err.(*PayloadError); ok {
			pe.Fragment = truncate(resp.RawJSON())
		}
		return nil, err
	}

	return vectors, nil
}
