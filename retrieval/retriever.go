// Package retrieval answers "related regulations" queries over an indexed
// law collection.
package retrieval

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/samber/lo"

	trolyindex "github.com/mhrlife/troly-index"
	"github.com/mhrlife/troly-index/vectordb"
)

const DefaultTopK = 10

//go:embed templates/*.tpl
var templateFS embed.FS

var ErrEmptyQuery = errors.New("query is empty")

// Group is the hits of one law, in retrieval order.
type Group struct {
	ParentID string
	Head     string
	Contents []string
	Citation string
}

type Retriever struct {
	Store vectordb.Client
	// TopK defaults to DefaultTopK.
	TopK int
	// Filters are applied to every search, e.g. {"type": "Điều"}.
	Filters map[string]any

	templates trolyindex.Template[struct{}]
}

func NewRetriever(store vectordb.Client, topK int) (*Retriever, error) {
	templates := trolyindex.NewTemplate[struct{}]()

	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	if err := templates.Load(sub); err != nil {
		return nil, fmt.Errorf("failed to load retrieval templates: %w", err)
	}

	return &Retriever{
		Store:     store,
		TopK:      topK,
		templates: templates,
	}, nil
}

func (r *Retriever) topK() int {
	if r.TopK <= 0 {
		return DefaultTopK
	}

	return r.TopK
}

// Retrieve returns the closest documents to query, closest first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectordb.DocumentWithScore, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	return r.Store.SearchDocuments(ctx, vectordb.DocumentSearch{
		Query:   query,
		TopK:    r.topK(),
		Filters: r.Filters,
	})
}

// RelatedRegulations retrieves the closest articles and renders them grouped
// by law.
func (r *Retriever) RelatedRegulations(ctx context.Context, query string) (string, error) {
	hits, err := r.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}

	return r.Render(GroupHits(hits))
}

// Render formats groups as plain text for a language model.
func (r *Retriever) Render(groups []Group) (string, error) {
	if r.templates == nil {
		return "", fmt.Errorf("retriever has no templates: use NewRetriever")
	}

	return r.templates.Execute("regulations", trolyindex.Render[struct{}]{Data: groups})
}

// GroupHits groups hits by their parent law in first-seen order. A hit with
// no parent_id is a group of its own.
func GroupHits(hits []vectordb.DocumentWithScore) []Group {
	var groups []*Group
	byParent := make(map[string]*Group)

	for _, hit := range hits {
		parentID := metaString(hit.Meta, "parent_id")

		group, ok := byParent[parentID]
		if !ok || parentID == "" {
			group = &Group{
				ParentID: parentID,
				Head:     metaString(hit.Meta, "text_head"),
			}
			if group.Head == "" {
				group.Head = metaString(hit.Meta, "law")
			}

			groups = append(groups, group)
			if parentID != "" {
				byParent[parentID] = group
			}
		}

		group.Contents = append(group.Contents, hit.Content)
		if citation := metaString(hit.Meta, "citation"); citation != "" {
			group.Citation = joinCitation(group.Citation, citation)
		}
	}

	return lo.Map(groups, func(g *Group, _ int) Group { return *g })
}

func joinCitation(current, citation string) string {
	if current == "" {
		return citation
	}
	if lo.Contains(strings.Split(current, "; "), citation) {
		return current
	}

	return current + "; " + citation
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}

	return fmt.Sprint(v)
}
