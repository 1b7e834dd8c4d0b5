// Package indexer loads a law CSV, turns every article into a document and
// stores the documents in a vector store, as one traced pipeline graph.
package indexer

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	trolyindex "github.com/mhrlife/troly-index"
	"github.com/mhrlife/troly-index/lawdoc"
	"github.com/mhrlife/troly-index/vectordb"
)

// FilterFields are the metadata fields a law collection can be filtered on.
var FilterFields = []string{"type", "law", "parent_id", "name"}

type Options struct {
	// AllLaws skips the "mới nhất" filter and indexes every row.
	AllLaws bool
	// Limit caps the number of documents stored. Zero stores all of them.
	Limit int
	// Index is passed to CreateIndex before storing.
	Index vectordb.IndexConfig
}

// State is threaded through the pipeline nodes.
type State struct {
	Source    io.Reader
	Laws      []lawdoc.Law
	Documents []vectordb.Document
	Stored    int
}

type Indexer struct {
	client *trolyindex.Client
	store  vectordb.Client
	opts   Options
	graph  *trolyindex.Graph[State]
}

func New(client *trolyindex.Client, store vectordb.Client, opts Options) (*Indexer, error) {
	if opts.Index.FilterFields == nil {
		opts.Index.FilterFields = FilterFields
	}

	ix := &Indexer{
		client: client,
		store:  store,
		opts:   opts,
	}

	graph, err := trolyindex.NewGraph("index_laws",
		trolyindex.NewNode("load_csv", ix.loadCSV),
		trolyindex.NewNode("filter", ix.filter),
		trolyindex.NewNode("build_documents", ix.buildDocuments),
		trolyindex.NewNode("store", ix.storeDocuments),
	)
	if err != nil {
		return nil, err
	}
	ix.graph = graph

	return ix, nil
}

// IndexFile indexes the CSV file at path.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open law csv")
	}
	defer f.Close()

	return ix.Index(ctx, f)
}

// Index runs the pipeline over a CSV stream.
func (ix *Indexer) Index(ctx context.Context, r io.Reader) (*State, error) {
	return ix.graph.Run(ctx, ix.client, State{Source: r})
}

func (ix *Indexer) loadCSV(ctx context.Context, arg trolyindex.NodeArg[State]) (State, string, error) {
	laws, err := lawdoc.ReadCSV(arg.Context.Source)
	if err != nil {
		return arg.Context, "", err
	}

	arg.Context.Laws = laws
	arg.Metadata["rows"] = len(laws)

	return arg.Context, "filter", nil
}

func (ix *Indexer) filter(ctx context.Context, arg trolyindex.NodeArg[State]) (State, string, error) {
	if !ix.opts.AllLaws {
		arg.Context.Laws = lawdoc.FilterLatest(arg.Context.Laws)
	}

	arg.Metadata["laws"] = len(arg.Context.Laws)
	arg.Client.Logger().Info("Selected laws", "count", len(arg.Context.Laws))

	return arg.Context, "build_documents", nil
}

func (ix *Indexer) buildDocuments(ctx context.Context, arg trolyindex.NodeArg[State]) (State, string, error) {
	docs := lawdoc.BuildDocuments(arg.Context.Laws)
	if ix.opts.Limit > 0 && len(docs) > ix.opts.Limit {
		docs = docs[:ix.opts.Limit]
	}

	arg.Context.Documents = docs
	arg.Metadata["documents"] = len(docs)
	arg.Client.Logger().Info("Built article documents", "count", len(docs))

	if len(docs) == 0 {
		return arg.Context, trolyindex.GraphExit, nil
	}

	return arg.Context, "store", nil
}

func (ix *Indexer) storeDocuments(ctx context.Context, arg trolyindex.NodeArg[State]) (State, string, error) {
	if err := ix.store.CreateIndex(ctx, ix.opts.Index); err != nil {
		return arg.Context, "", errors.Wrap(err, "failed to create index")
	}

	if err := ix.store.StoreDocumentsBatch(ctx, arg.Context.Documents); err != nil {
		return arg.Context, "", errors.Wrap(err, "failed to store documents")
	}

	arg.Context.Stored = len(arg.Context.Documents)
	arg.Metadata["stored"] = arg.Context.Stored

	return arg.Context, trolyindex.GraphExit, nil
}
