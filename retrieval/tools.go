package retrieval

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	trolyindex "github.com/mhrlife/troly-index"
	"github.com/mhrlife/troly-index/vectordb"
)

const snippetRunes = 300

type RelatedRegulationsArgs struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"Câu hỏi hoặc tình huống pháp lý cần tra cứu"`
}

// RelatedRegulationsTool exposes RelatedRegulations as the related_regulations tool.
func (r *Retriever) RelatedRegulationsTool() *trolyindex.Tool[RelatedRegulationsArgs] {
	return &trolyindex.Tool[RelatedRegulationsArgs]{
		Name:        "Related Regulations",
		Description: "Find the Vietnamese law articles related to a question, grouped by law with citations.",
		Runner: func(ctx *trolyindex.ToolContext, args RelatedRegulationsArgs) (any, error) {
			return r.RelatedRegulations(ctx, args.Query)
		},
	}
}

// SearchTool lists matching articles in the Deep Research result format.
func (r *Retriever) SearchTool() trolyindex.OpenAISearch {
	return trolyindex.OpenAISearch{
		Description: "Search Vietnamese law articles. Returns ids to pass to fetch.",
		Exec: func(ctx context.Context, query string) ([]trolyindex.OpenAISearchResult, error) {
			hits, err := r.Retrieve(ctx, query)
			if err != nil {
				return nil, err
			}

			return lo.Map(hits, func(hit vectordb.DocumentWithScore, _ int) trolyindex.OpenAISearchResult {
				return searchResult(hit.Document, snippet(hit.Content))
			}), nil
		},
	}
}

// FetchTool returns the full text of one article by id.
func (r *Retriever) FetchTool() trolyindex.OpenAIFetch {
	return trolyindex.OpenAIFetch{
		Description: "Fetch the full text of a law article by the id returned from search.",
		Exec: func(ctx context.Context, id string) (*trolyindex.OpenAISearchResult, error) {
			doc, err := r.Store.GetDocument(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch %s: %w", id, err)
			}

			result := searchResult(doc, doc.Content)
			return &result, nil
		},
	}
}

func searchResult(doc vectordb.Document, text string) trolyindex.OpenAISearchResult {
	title := metaString(doc.Meta, "citation")
	if title == "" {
		title = metaString(doc.Meta, "name")
	}

	return trolyindex.OpenAISearchResult{
		ID:    doc.ID,
		Title: title,
		Text:  text,
	}
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}

	return string(runes[:snippetRunes]) + "..."
}
