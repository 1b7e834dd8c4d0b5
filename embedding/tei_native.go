package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type nativeRequest struct {
	Inputs []string `json:"inputs"`
}

type nativeResponse struct {
	Embeddings *[][]float64 `json:"embeddings"`
}

// nativeRoute speaks TEI's own /embed endpoint, whose response is
// positionally aligned with the request.
type nativeRoute struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func newNativeRoute(c *TEIClient) *nativeRoute {
	return &nativeRoute{
		url:        c.baseURL + "/embed",
		apiKey:     c.apiKey,
		httpClient: c.httpClient,
	}
}

func (r *nativeRoute) endpoint() string { return r.url }

func (r *nativeRoute) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(nativeRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: r.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: r.url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: r.url, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Endpoint:   r.url,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw)),
		}
	}

	vectors, err := decodeNative(r.url, raw)
	if err != nil {
		return nil, err
	}

	if err := checkAligned(r.url, vectors, len(texts)); err != nil {
		return nil, err
	}

	return vectors, nil
}

// decodeNative accepts {"embeddings": [[...]]} and, as some deployments
// return it, a bare [[...]] list.
func decodeNative(endpoint string, raw []byte) ([][]float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &PayloadError{Endpoint: endpoint, Reason: "empty response body"}
	}

	switch trimmed[0] {
	case '[':
		var vectors [][]float64
		if err := json.Unmarshal(trimmed, &vectors); err != nil {
			return nil, &PayloadError{Endpoint: endpoint, Reason: "malformed embeddings list", Fragment: truncate(string(trimmed)), Err: err}
		}
		return vectors, nil

	case '{':
		var body nativeResponse
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return nil, &PayloadError{Endpoint: endpoint, Reason: "malformed response object", Fragment: truncate(string(trimmed)), Err: err}
		}
		if body.Embeddings == nil {
			return nil, &PayloadError{Endpoint: endpoint, Reason: `response has no "embeddings" field`, Fragment: truncate(string(trimmed))}
		}
		return *body.Embeddings, nil
	}

	return nil, &PayloadError{Endpoint: endpoint, Reason: "unexpected response", Fragment: truncate(string(trimmed))}
}
