package main

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mhrlife/troly-index/vectordb"
)

const demoCollection = "tei_demo"

var (
	queryTexts []string
	queryText  string
	queryTopK  int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Index a few texts and run a query against a collection",
	Long: `Add the --index texts to the collection (tei_demo unless --collection is
set), then print the nearest neighbours of --query.`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringArrayVar(&queryTexts, "index", nil, "text to index (repeatable)")
	queryCmd.Flags().StringVar(&queryText, "query", "", "query text to run")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 5, "neighbours to return")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(queryTexts) == 0 && queryText == "" {
		return errors.New("nothing to do: pass --index and/or --query")
	}

	name := state.cfg.Store.Collection
	if name == "" {
		name = demoCollection
	}

	emb, err := state.embedder()
	if err != nil {
		return err
	}
	defer closeEmbedder(emb)

	store, closeStore, err := state.openIndex(ctx, name, emb)
	if err != nil {
		return err
	}
	defer closeStore()

	if len(queryTexts) > 0 {
		fmt.Fprintf(out, "Indexing %d texts into collection '%s'…\n", len(queryTexts), name)

		docs := lo.Map(queryTexts, func(text string, _ int) vectordb.Document {
			return vectordb.Document{Content: text}
		})
		if err := store.StoreDocumentsBatch(ctx, docs); err != nil {
			return err
		}
	}

	if queryText == "" {
		return nil
	}

	fmt.Fprintf(out, "\nQuery: %s\n", queryText)
	hits, err := store.SearchDocuments(ctx, vectordb.DocumentSearch{Query: queryText, TopK: queryTopK})
	if err != nil {
		return err
	}
	printHits(out, hits)

	return nil
}
