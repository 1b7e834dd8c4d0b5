package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mhrlife/troly-index/indexer"
)

var (
	indexCSV     string
	indexAllLaws bool
	indexLimit   int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the articles of a law CSV",
	Long: `Read a CSV with subject and text columns, keep the latest version of each
law, split every law into articles and store them in the collection.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexCSV, "csv", "luat.csv", "CSV file with subject and text columns")
	indexCmd.Flags().BoolVar(&indexAllLaws, "all", false, "index every row, not only laws marked \"mới nhất\"")
	indexCmd.Flags().IntVar(&indexLimit, "limit", 0, "store at most this many articles (0 for all)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := state.cfg.Collection()

	emb, err := state.embedder()
	if err != nil {
		return err
	}
	defer closeEmbedder(emb)

	store, closeStore, err := state.openStore(name, emb)
	if err != nil {
		return err
	}
	defer closeStore()

	indexCfg, err := state.indexConfig(ctx, emb)
	if err != nil {
		return err
	}

	ix, err := indexer.New(state.client, store, indexer.Options{
		AllLaws: indexAllLaws,
		Limit:   indexLimit,
		Index:   indexCfg,
	})
	if err != nil {
		return err
	}

	state.logger.Info("Indexing laws",
		"csv", indexCSV,
		"collection", name,
		"backend", state.cfg.Embedding.Backend,
		"store", state.cfg.Store.Backend,
	)

	result, err := ix.IndexFile(ctx, indexCSV)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d articles from %d laws into %q\n", result.Stored, len(result.Laws), name)
	return nil
}
