package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	trolyindex "github.com/mhrlife/troly-index"
	"github.com/mhrlife/troly-index/retrieval"
)

var (
	serveAddr  string
	serveStdio bool
	serveTopK  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve related regulations over MCP",
	Long: `Start an MCP server with the related_regulations tool, and the search and
fetch tools Deep Research clients expect, backed by the collection.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8081", "address of the SSE server")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "serve over stdin/stdout instead of SSE")
	serveCmd.Flags().IntVar(&serveTopK, "top-k", retrieval.DefaultTopK, "articles retrieved per query")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := state.cfg.Collection()

	emb, err := state.embedderFor(name)
	if err != nil {
		return err
	}
	defer closeEmbedder(emb)

	store, closeStore, err := state.openIndex(ctx, name, emb)
	if err != nil {
		return err
	}
	defer closeStore()

	retriever, err := retrieval.NewRetriever(store, serveTopK)
	if err != nil {
		return err
	}

	s := server.NewMCPServer("troly-index", version, server.WithToolCapabilities(false))
	if err := trolyindex.AddTools(state.client, s, retriever.RelatedRegulationsTool()); err != nil {
		return err
	}
	if err := trolyindex.AddOpenAISearchTools(s, retriever.SearchTool(), retriever.FetchTool()); err != nil {
		return err
	}

	if serveStdio {
		return trolyindex.ServeStdio(s)
	}

	return trolyindex.StartSSEServerWithRoutes(ctx, serveAddr, trolyindex.ServerRoute{
		Path:   "/" + name,
		Server: s,
	})
}
