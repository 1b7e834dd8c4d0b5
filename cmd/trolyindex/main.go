package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile    string
	verbose    bool
	storePath  string
	backend    string
	collection string
)

var rootCmd = &cobra.Command{
	Use:   "trolyindex",
	Short: "Index Vietnamese laws into a vector store and serve related regulations",
	Long: `trolyindex parses Vietnamese legal texts into articles, embeds them with a
TEI server, the OpenAI API or a local model, and stores them in a SQLite or
Redis vector store. The same store backs an MCP server that answers
"related regulations" queries.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&storePath, "path", "", "SQLite vector store file (default from VECTOR_STORE_PATH)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "embedding backend: tei, openai or local (default from EMBED_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "collection to use (default depends on the backend)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(releaseCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
