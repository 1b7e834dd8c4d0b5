package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mhrlife/troly-index/vectordb"
)

var (
	inspectPeek  int
	inspectQuery string
	inspectTopK  int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List collections, peek into one and optionally query it",
	Long: `Without --collection, list the collections in the SQLite store. With it,
print the document count and the first few documents, and run --query
against the collection with the model that built it.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectPeek, "peek", 3, "number of documents to print")
	inspectCmd.Flags().StringVar(&inspectQuery, "query", "", "semantic query to run against the collection")
	inspectCmd.Flags().IntVar(&inspectTopK, "top-k", 5, "number of neighbours to return for --query")
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if collection == "" && state.cfg.Store.Collection == "" {
		db, err := state.openSQLite()
		if err != nil {
			return err
		}
		defer db.Close()

		infos, err := vectordb.ListCollections(ctx, db)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Fprintln(out, "No collections found.")
			return nil
		}

		fmt.Fprintln(out, "Collections found:")
		for _, info := range infos {
			fmt.Fprintf(out, "- %s (%d documents, %d dimensions, %s)\n", info.Name, info.Count, info.Dimensions, info.DistanceMetric)
		}
		fmt.Fprintln(out, "\nUse --collection <name> to inspect or query a collection.")
		return nil
	}

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

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Collection '%s': %d items\n", name, count)

	if count > 0 && inspectPeek > 0 {
		docs, err := store.Peek(ctx, inspectPeek)
		if err != nil {
			return err
		}
		for i, doc := range docs {
			printDocument(out, i+1, doc, nil)
		}
	}

	if inspectQuery == "" {
		return nil
	}

	fmt.Fprintf(out, "\nRunning query %q\n", inspectQuery)
	hits, err := store.SearchDocuments(ctx, vectordb.DocumentSearch{Query: inspectQuery, TopK: inspectTopK})
	if err != nil {
		return err
	}
	printHits(out, hits)

	return nil
}

func printHits(out io.Writer, hits []vectordb.DocumentWithScore) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}

	for i, hit := range hits {
		printDocument(out, i+1, hit.Document, lo.ToPtr(hit.Score))
	}
}

func printDocument(out io.Writer, rank int, doc vectordb.Document, score *float64) {
	if score != nil {
		fmt.Fprintf(out, "  #%d id=%s distance=%.4f\n", rank, doc.ID, *score)
	} else {
		fmt.Fprintf(out, "  #%d id=%s\n", rank, doc.ID)
	}

	if len(doc.Meta) > 0 {
		keys := lo.Keys(doc.Meta)
		sort.Strings(keys)
		pairs := lo.Map(keys, func(k string, _ int) string { return fmt.Sprintf("%s=%v", k, doc.Meta[k]) })
		fmt.Fprintf(out, "     meta: %s\n", strings.Join(pairs, " "))
	}
	if doc.Content != "" {
		fmt.Fprintf(out, "     doc : %s\n", preview(doc.Content, 200))
	}
}

func preview(text string, n int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	return string(runes[:n]) + "…"
}
