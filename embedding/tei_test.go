package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTEI serves /embed with a vector whose first component is the text length.
func fakeTEI(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/embed", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req nativeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float64, len(req.Inputs))
		for i, text := range req.Inputs {
			vectors[i] = []float64{float64(len([]rune(text))), 1}
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	}))
}

func TestTEIEmbedTextsKeepsOrderAcrossBatches(t *testing.T) {
	var calls atomic.Int32
	srv := fakeTEI(t, &calls)
	defer srv.Close()

	client, err := NewTEIClient(srv.URL, WithTEIBatchSize(2))
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, v := range vectors {
		assert.Equal(t, float64(i+1), v[0])
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestTEIEmptyInputSendsNothing(t *testing.T) {
	var calls atomic.Int32
	srv := fakeTEI(t, &calls)
	defer srv.Close()

	client, err := NewTEIClient(srv.URL)
	require.NoError(t, err)

	vectors, err := client.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, vectors)
	assert.Empty(t, vectors)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTEIVietnameseRoundTrip(t *testing.T) {
	texts := []string{"Điều 1. Phạm vi điều chỉnh", "Khoản 2. Người lao động"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req nativeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, texts, req.Inputs)

		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3,0.4],[0.5,0.6,0.7,0.8]]}`))
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL + "/")
	require.NoError(t, err)

	vectors, err := client.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2, 0.3, 0.4}, {0.5, 0.6, 0.7, 0.8}}, vectors)
}

func TestTEIAcceptsBareList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1,2,3]]`))
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL)
	require.NoError(t, err)

	vector, err := client.EmbedText(context.Background(), "xin chào")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, vector)
}

func TestTEIOpenAIRouteScattersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "bge-m3", req.Model)

		// Reply in reverse order; position must come from "index".
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), float64(i)},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL, WithTEIRoute(RouteOpenAI), WithTEIModel("bge-m3"))
	require.NoError(t, err)
	assert.Equal(t, RouteOpenAI, client.Route())

	vectors, err := client.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}, {1, 1}, {2, 2}}, vectors)
}

func TestTEIServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL)
	require.NoError(t, err)

	vectors, err := client.EmbedTexts(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Nil(t, vectors)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrPayload)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Contains(t, te.Body, "model overloaded")
}

func TestTEIOpenAIRouteServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL, WithTEIRoute(RouteOpenAI))
	require.NoError(t, err)

	_, err = client.EmbedTexts(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Contains(t, te.Body, "upstream unavailable")
}

func TestTEIConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewTEIClient(url)
	require.NoError(t, err)

	_, err = client.EmbedTexts(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, te.StatusCode)
}

func TestTEIPayloadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing embeddings field", `{"vectors":[[1,2]]}`},
		{"malformed json", `{"embeddings": [[1,2]`},
		{"wrong count", `{"embeddings":[[1,2],[3,4]]}`},
		{"empty vector", `{"embeddings":[[]]}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewTEIClient(srv.URL)
			require.NoError(t, err)

			vectors, err := client.EmbedTexts(context.Background(), []string{"a"})
			require.Error(t, err)
			assert.Nil(t, vectors)
			assert.ErrorIs(t, err, ErrPayload)
			assert.NotErrorIs(t, err, ErrTransport)
		})
	}
}

func TestTEIOpenAIRouteBadIndexIsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]},{"object":"embedding","index":0,"embedding":[2]}]}`))
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL, WithTEIRoute(RouteOpenAI))
	require.NoError(t, err)

	_, err = client.EmbedTexts(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayload)
	assert.Contains(t, err.Error(), "duplicate embedding index 0")
}

func TestTEIAuthorizationHeader(t *testing.T) {
	for _, route := range []Route{RouteNative, RouteOpenAI} {
		t.Run(string(route), func(t *testing.T) {
			var headers []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				headers = append(headers, r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				if route == RouteOpenAI {
					_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1]}]}`))
					return
				}
				_, _ = w.Write([]byte(`[[1]]`))
			}))
			defer srv.Close()

			withKey, err := NewTEIClient(srv.URL, WithTEIRoute(route), WithTEIAPIKey("secret"))
			require.NoError(t, err)
			_, err = withKey.EmbedTexts(context.Background(), []string{"a"})
			require.NoError(t, err)

			withoutKey, err := NewTEIClient(srv.URL, WithTEIRoute(route))
			require.NoError(t, err)
			_, err = withoutKey.EmbedTexts(context.Background(), []string{"a"})
			require.NoError(t, err)

			require.Len(t, headers, 2)
			assert.Equal(t, "Bearer secret", headers[0])
			assert.Empty(t, headers[1])
		})
	}
}

func TestNewTEIClientRejectsBadConfig(t *testing.T) {
	for _, base := range []string{"", "   ", "localhost:8080", "ftp://example.com", "http://"} {
		_, err := NewTEIClient(base)
		assert.ErrorIs(t, err, ErrInvalidConfig, "base %q", base)
	}

	_, err := NewTEIClient("http://localhost:8080", WithTEIBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTEIClient("http://localhost:8080", WithTEIRoute("grpc"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTEIRetriesTransportWhenEnabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[[1,2]]`))
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL, WithTEIRetries(2))
	require.NoError(t, err)

	vectors, err := client.EmbedTexts(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, vectors)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTEIDoesNotRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL)
	require.NoError(t, err)

	_, err = client.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTEINeverRetriesPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"nope":true}`))
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL, WithTEIRetries(3))
	require.NoError(t, err)

	_, err = client.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrPayload)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTEIFailingBatchDiscardsEarlierBatches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[[1]]`))
	}))
	defer srv.Close()

	client, err := NewTEIClient(srv.URL, WithTEIBatchSize(1))
	require.NoError(t, err)

	vectors, err := client.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedTextRequiresExactlyOneVector(t *testing.T) {
	_, err := EmbedText(context.Background(), stubClient{vectors: [][]float64{{1}, {2}}}, "a")
	assert.ErrorIs(t, err, ErrPayload)

	_, err = EmbedText(context.Background(), stubClient{err: errors.New("boom")}, "a")
	assert.EqualError(t, err, "boom")
}

type stubClient struct {
	vectors [][]float64
	err     error
}

func (s stubClient) EmbedTexts(context.Context, []string) ([][]float64, error) {
	return s.vectors, s.err
}

func TestScatter(t *testing.T) {
	out, err := scatter("test", []indexedVector{{Index: 1, Vector: []float64{2}}, {Index: 0, Vector: []float64{1}}}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}}, out)

	for i, items := range [][]indexedVector{
		{{Index: 0, Vector: []float64{1}}},
		{{Index: 0, Vector: []float64{1}}, {Index: 2, Vector: []float64{1}}},
		{{Index: 0, Vector: []float64{1}}, {Index: 1, Vector: nil}},
	} {
		_, err := scatter("test", items, 2)
		assert.ErrorIs(t, err, ErrPayload, fmt.Sprintf("case %d", i))
	}
}
