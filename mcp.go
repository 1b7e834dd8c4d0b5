package trolyindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ErrBadOptions reports an unusable server or tool setup.
var ErrBadOptions = errors.New("bad options")

// OpenAISearchResult is the exact format used by OpenAI's Deep Research search results.
type OpenAISearchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

type OpenAISearch struct {
	Description string
	Exec        func(ctx context.Context, query string) ([]OpenAISearchResult, error)
}

type OpenAIFetch struct {
	Description string
	Exec        func(ctx context.Context, id string) (*OpenAISearchResult, error)
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"Search query"`
}

type searchResults struct {
	Results []OpenAISearchResult `json:"results"`
}

type fetchArgs struct {
	ID string `json:"id" jsonschema:"required" jsonschema_description:"Id of a search result"`
}

func NewMCPServer(client *Client, name, version string, tools ...AITool) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)

	if err := AddTools(client, s, tools...); err != nil {
		return nil, err
	}

	return s, nil
}

// AddTools registers tools on an existing server.
func AddTools(client *Client, s *server.MCPServer, tools ...AITool) error {
	for _, tool := range tools {
		if tool == nil {
			return fmt.Errorf("%w: nil tool", ErrBadOptions)
		}

		if err := addGenericToolToMCP(client, s, tool); err != nil {
			client.logger.Error("Failed to add tool",
				"tool_name", tool.ToolInfo().ID,
				"error", err,
			)

			return err
		}

		client.logger.Info("Added MCP tool",
			"tool_name", tool.ToolInfo().ID,
			"tool_description", tool.ToolInfo().Description,
		)
	}

	return nil
}

// NewOpenAIDeepResearchMCPServer creates an MCP server specifically for OpenAI's Deep Research
func NewOpenAIDeepResearchMCPServer(name, version string, search OpenAISearch, fetch OpenAIFetch) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)

	if err := AddOpenAISearchTools(s, search, fetch); err != nil {
		return nil, err
	}

	return s, nil
}

// AddOpenAISearchTools registers the "search" and "fetch" tools Deep Research expects.
func AddOpenAISearchTools(s *server.MCPServer, search OpenAISearch, fetch OpenAIFetch) error {
	if search.Exec == nil || fetch.Exec == nil {
		return fmt.Errorf("%w: search and fetch need an Exec function", ErrBadOptions)
	}

	if err := addOpenAISearchTool(s, search); err != nil {
		return fmt.Errorf("failed to add search tool: %w", err)
	}

	if err := addOpenAIFetchTool(s, fetch); err != nil {
		return fmt.Errorf("failed to add fetch tool: %w", err)
	}

	return nil
}

func addGenericToolToMCP(client *Client, s *server.MCPServer, tool AITool) error {
	info := tool.ToolInfo()

	schemaJSON, err := json.Marshal(info.JSONSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for tool %s: %w", info.ID, err)
	}

	s.AddTool(mcp.NewToolWithRawSchema(info.ID, info.Description, schemaJSON), genericToolHandler(client, tool))

	return nil
}

func genericToolHandler(client *Client, tool AITool) server.ToolHandlerFunc {
	info := tool.ToolInfo()

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsJSON, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal arguments: %w", err)
		}

		toolCtx := &ToolContext{
			Context: ctx,
			Client:  client,
		}

		result, err := tool.Run(toolCtx, string(argsJSON))
		if err != nil {
			client.logger.Warn("Tool execution failed",
				"tool_name", info.ID,
				"error", err,
			)

			return mcp.NewToolResultError(fmt.Sprintf("tool execution failed: %v", err)), nil
		}

		// Plain strings go out as text as they are.
		if text, ok := result.(string); ok && !info.ForceMCPStructuredOutput {
			return mcp.NewToolResultText(text), nil
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		// Check if the tool requires structured output only
		if info.ForceMCPStructuredOutput {
			return &mcp.CallToolResult{
				StructuredContent: result,
			}, nil
		}

		return &mcp.CallToolResult{
			Content:           []mcp.Content{mcp.NewTextContent(string(resultJSON))},
			StructuredContent: result,
		}, nil
	}
}

func addOpenAISearchTool(s *server.MCPServer, search OpenAISearch) error {
	searchSchema, err := InferJSONSchema(searchArgs{}).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to generate search schema: %w", err)
	}

	s.AddTool(mcp.NewToolWithRawSchema("search", search.Description, searchSchema), searchHandler(search))

	return nil
}

func searchHandler(search OpenAISearch) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := request.GetString("query", "")
		if query == "" {
			return nil, fmt.Errorf("query parameter is required")
		}

		results, err := search.Exec(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search execution failed: %w", err)
		}

		if results == nil {
			results = []OpenAISearchResult{}
		}

		response := searchResults{
			Results: results,
		}

		responseJSON, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal search results: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{
					Type: "text",
					Text: string(responseJSON),
				},
			},
			StructuredContent: response,
		}, nil
	}
}

func addOpenAIFetchTool(s *server.MCPServer, fetch OpenAIFetch) error {
	fetchSchema, err := InferJSONSchema(fetchArgs{}).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to generate fetch schema: %w", err)
	}

	s.AddTool(mcp.NewToolWithRawSchema("fetch", fetch.Description, fetchSchema), fetchHandler(fetch))

	return nil
}

func fetchHandler(fetch OpenAIFetch) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("id", "")
		if id == "" {
			return nil, fmt.Errorf("id parameter is required")
		}

		result, err := fetch.Exec(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch execution failed: %w", err)
		}

		if result == nil {
			return nil, fmt.Errorf("fetch returned nil result")
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal fetch result: %w", err)
		}

		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

type ServerRoute struct {
	Path   string
	Server *server.MCPServer
}

func normalizeBasePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.HasSuffix(p, "/") && len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	return p
}

// NewSSEHandler mounts every route's SSE and message endpoints on one mux,
// with an index of the routes at "/".
func NewSSEHandler(httpSrv *http.Server, routes ...ServerRoute) (http.Handler, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: at least one server route is required", ErrBadOptions)
	}

	mux := http.NewServeMux()
	routesInfo := make([]map[string]string, len(routes))

	for i, route := range routes {
		basePath := normalizeBasePath(route.Path)

		sseServer := server.NewSSEServer(
			route.Server,
			server.WithHTTPServer(httpSrv),
			server.WithStaticBasePath(basePath),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
		)

		sseEndpointPath := basePath + "/sse"
		mux.Handle(sseEndpointPath, sseServer.SSEHandler())

		messageEndpointPath := basePath + "/message"
		mux.Handle(messageEndpointPath, sseServer.MessageHandler())

		routesInfo[i] = map[string]string{
			"base_path":        basePath,
			"sse_endpoint":     sseEndpointPath,
			"message_endpoint": messageEndpointPath,
		}

		slog.Info("Registered MCP SSE server",
			"base_path", basePath,
			"sse_endpoint", sseEndpointPath,
			"message_endpoint", messageEndpointPath,
		)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "MCP Server Hub",
			"count":   len(routes),
			"routes":  routesInfo,
		})
	})

	return mux, nil
}

// StartSSEServerWithRoutes serves the routes until ctx is cancelled.
func StartSSEServerWithRoutes(ctx context.Context, addr string, routes ...ServerRoute) error {
	httpSrv := &http.Server{Addr: addr}

	handler, err := NewSSEHandler(httpSrv, routes...)
	if err != nil {
		return err
	}
	httpSrv.Handler = handler

	slog.Info("Starting MCP server hub",
		"address", addr,
		"routes_count", len(routes),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return nil
	}
}

// StartSSEServer serves a single MCP server under /default.
func StartSSEServer(ctx context.Context, mcpServer *server.MCPServer, addr string) error {
	slog.Info("Registered one MCP server",
		"addr_for_openai", addr+"/default",
	)

	return StartSSEServerWithRoutes(ctx, addr, ServerRoute{
		Path:   "/default",
		Server: mcpServer,
	})
}

// ServeStdio serves mcpServer over stdin/stdout for local MCP clients.
func ServeStdio(mcpServer *server.MCPServer) error {
	return server.ServeStdio(mcpServer)
}
