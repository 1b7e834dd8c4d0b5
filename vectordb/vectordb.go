package vectordb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mhrlife/troly-index/embedding"
)

var (
	ErrIndexNotCreated = errors.New("index not created: call CreateIndex first")
	ErrNotFound        = errors.New("document not found")
)

const (
	MetricCosine = "COSINE"
	MetricL2     = "L2"
	MetricIP     = "IP"

	DefaultBatchSize = 64
)

type Document struct {
	ID      string
	Content string
	Meta    map[string]any
}

// DocumentWithScore is a search hit. Score is a distance: lower is closer.
type DocumentWithScore struct {
	Document
	Score float64
}

type DocumentSearch struct {
	Query string
	// Filters keeps only documents whose metadata field equals the value.
	Filters map[string]any
	TopK    int
}

type IndexConfig struct {
	Dimensions     int
	DistanceMetric string
	// FilterFields are metadata fields indexed for filtering. Only Redis
	// needs them declared up front.
	FilterFields []string
}

type Client interface {
	CreateIndex(ctx context.Context, config IndexConfig) error
	StoreDocument(ctx context.Context, doc Document) error
	StoreDocumentsBatch(ctx context.Context, docs []Document) error
	// StoreEmbeddings stores documents whose vectors were computed elsewhere.
	StoreEmbeddings(ctx context.Context, docs []Document, vectors [][]float64) error
	UpdateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	DeleteDocument(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Peek(ctx context.Context, limit int) ([]Document, error)
	SearchDocuments(ctx context.Context, search DocumentSearch) ([]DocumentWithScore, error)
}

type options struct {
	batchSize int
	logger    *slog.Logger
}

type Option func(*options)

// WithBatchSize sets how many documents are embedded per request.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{batchSize: DefaultBatchSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func normalizeMetric(metric string) (string, error) {
	if metric == "" {
		return MetricCosine, nil
	}

	metric = strings.ToUpper(metric)
	switch metric {
	case MetricCosine, MetricL2, MetricIP:
		return metric, nil
	}

	return "", fmt.Errorf("invalid distance metric: %s (must be L2, COSINE, or IP)", metric)
}

// assignIDs gives every document without an ID a random one.
func assignIDs(docs []Document) []Document {
	return lo.Map(docs, func(doc Document, _ int) Document {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		return doc
	})
}

// embedDocuments embeds document contents batch by batch, logging progress.
func embedDocuments(ctx context.Context, client embedding.Client, docs []Document, o options) ([][]float64, error) {
	vectors := make([][]float64, 0, len(docs))
	batches := lo.Chunk(docs, o.batchSize)

	for i, batch := range batches {
		contents := lo.Map(batch, func(doc Document, _ int) string { return doc.Content })

		embeddings, err := client.EmbedTexts(ctx, contents)
		if err != nil {
			return nil, fmt.Errorf("failed to embed documents: %w", err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding client returned %d vectors for %d documents", len(embeddings), len(batch))
		}

		vectors = append(vectors, embeddings...)
		o.logger.Info("Embedded batch",
			"batch", i+1,
			"batches", len(batches),
			"documents", len(vectors),
		)
	}

	return vectors, nil
}

func embedQuery(ctx context.Context, client embedding.Client, query string) ([]float64, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	vec, err := embedding.EmbedText(ctx, client, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return vec, nil
}

func matchesFilters(meta map[string]any, filters map[string]any) bool {
	for field, want := range filters {
		got, ok := meta[field]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}

	return true
}

// distance returns how far a is from b under metric; lower is closer.
func distance(metric string, a, b []float32) float64 {
	switch metric {
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return sum

	case MetricIP:
		return 1 - dot(a, b)
	}

	na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
	if na == 0 || nb == 0 {
		return 1
	}

	return 1 - dot(a, b)/(na*nb)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}

	return out
}

func encodeFloat32Vector(fs []float32) []byte {
	buf := make([]byte, len(fs)*4)

	for i, f := range fs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}

	return buf
}

func decodeFloat32Vector(buf []byte) []float32 {
	fs := make([]float32, len(buf)/4)

	for i := range fs {
		fs[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	return fs
}
