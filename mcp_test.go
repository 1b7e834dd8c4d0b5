package trolyindex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)

	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}

	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestSearchAndFetchHandlers(t *testing.T) {
	search := OpenAISearch{
		Description: "search laws",
		Exec: func(ctx context.Context, query string) ([]OpenAISearchResult, error) {
			require.Equal(t, "hợp đồng lao động", query)
			return []OpenAISearchResult{{ID: "d1", Title: "Điều 13"}}, nil
		},
	}
	fetch := OpenAIFetch{
		Description: "fetch a law article",
		Exec: func(ctx context.Context, id string) (*OpenAISearchResult, error) {
			if id == "d1" {
				return &OpenAISearchResult{ID: "d1", Title: "Điều 13", Text: "Hợp đồng lao động là..."}, nil
			}
			return nil, errors.New("not found")
		},
	}

	res, err := searchHandler(search)(context.Background(), callRequest("search", map[string]any{"query": "hợp đồng lao động"}))
	require.NoError(t, err)

	var decoded searchResults
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &decoded))
	require.Len(t, decoded.Results, 1)
	require.Equal(t, "Điều 13", decoded.Results[0].Title)

	_, err = searchHandler(search)(context.Background(), callRequest("search", map[string]any{}))
	require.Error(t, err)

	res, err = fetchHandler(fetch)(context.Background(), callRequest("fetch", map[string]any{"id": "d1"}))
	require.NoError(t, err)
	require.Contains(t, resultText(t, res), "Hợp đồng lao động là...")

	_, err = fetchHandler(fetch)(context.Background(), callRequest("fetch", map[string]any{"id": "zz"}))
	require.ErrorContains(t, err, "not found")

	s := server.NewMCPServer("laws", "v0.0.1")
	require.NoError(t, AddOpenAISearchTools(s, search, fetch))
	require.ErrorIs(t, AddOpenAISearchTools(s, OpenAISearch{}, fetch), ErrBadOptions)
}

type lookupArgs struct {
	Query string `json:"query" jsonschema_description:"What to look up"`
	TopK  int    `json:"top_k,omitempty"`
}

func TestGenericToolHandler(t *testing.T) {
	client := NewClient(WithoutEnv())

	tool := &Tool[lookupArgs]{
		Name:        "Related Regulations",
		Description: "find regulations",
		Runner: func(ctx *ToolContext, args lookupArgs) (any, error) {
			if args.Query == "" {
				return nil, errors.New("empty query")
			}
			return "found: " + args.Query, nil
		},
	}

	info := tool.ToolInfo()
	require.Equal(t, "related_regulations", info.ID)
	require.Equal(t, "object", info.JSONSchema["type"])
	require.Contains(t, info.JSONSchema["properties"], "query")
	require.Equal(t, false, info.JSONSchema["additionalProperties"])

	handler := genericToolHandler(client, tool)

	res, err := handler(context.Background(), callRequest(info.ID, map[string]any{"query": "thuế"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "found: thuế", resultText(t, res))

	res, err = handler(context.Background(), callRequest(info.ID, map[string]any{}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	structured := &Tool[lookupArgs]{
		Name: "peek",
		Runner: func(ctx *ToolContext, args lookupArgs) (any, error) {
			return map[string]int{"top_k": args.TopK}, nil
		},
	}
	res, err = genericToolHandler(client, structured)(context.Background(), callRequest("peek", map[string]any{"top_k": 3}))
	require.NoError(t, err)
	require.JSONEq(t, `{"top_k":3}`, resultText(t, res))
	require.Equal(t, map[string]int{"top_k": 3}, res.StructuredContent)

	_, err = NewMCPServer(client, "laws", "v0.0.1", tool, structured)
	require.NoError(t, err)
}

func TestSSEHandlerIndex(t *testing.T) {
	s := server.NewMCPServer("laws", "v0.0.1")

	_, err := NewSSEHandler(&http.Server{})
	require.ErrorIs(t, err, ErrBadOptions)

	handler, err := NewSSEHandler(&http.Server{}, ServerRoute{Path: "laws/", Server: s})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var index struct {
		Count  int                 `json:"count"`
		Routes []map[string]string `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &index))
	require.Equal(t, 1, index.Count)
	require.Equal(t, "/laws/sse", index.Routes[0]["sse_endpoint"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
