package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/mhrlife/troly-index/embedding"
)

// RedisVectorDB keeps one collection as RediSearch hashes under "<index>:<id>"
// with an HNSW vector field.
type RedisVectorDB struct {
	index       string
	embedClient embedding.Client
	client      *redis.Client
	opts        options
	indexConfig *IndexConfig
}

func NewRedisVectorDB(index string, embeddingClient embedding.Client, redisClient *redis.Client, opts ...Option) *RedisVectorDB {
	return &RedisVectorDB{
		index:       index,
		embedClient: embeddingClient,
		client:      redisClient,
		opts:        buildOptions(opts),
	}
}

func (r *RedisVectorDB) CreateIndex(ctx context.Context, config IndexConfig) error {
	if config.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", config.Dimensions)
	}

	distanceMetric, err := normalizeMetric(config.DistanceMetric)
	if err != nil {
		return err
	}
	config.DistanceMetric = distanceMetric

	schema := []*redis.FieldSchema{
		{
			FieldName: "content",
			FieldType: redis.SearchFieldTypeText,
		},
		{
			FieldName: "embedding",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				HNSWOptions: &redis.FTHNSWOptions{
					Dim:            config.Dimensions,
					DistanceMetric: distanceMetric,
					Type:           "FLOAT32",
				},
			},
		},
	}
	for _, field := range config.FilterFields {
		schema = append(schema, &redis.FieldSchema{
			FieldName: field,
			FieldType: redis.SearchFieldTypeTag,
		})
	}

	err = r.client.FTCreate(
		ctx,
		r.index,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{r.index + ":"},
		},
		schema...,
	).Err()

	if err != nil && !strings.Contains(err.Error(), "Index already exists") {
		return fmt.Errorf("failed to create index: %w", err)
	}

	r.indexConfig = &config
	return nil
}

func (r *RedisVectorDB) key(id string) string {
	return fmt.Sprintf("%s:%s", r.index, id)
}

func (r *RedisVectorDB) StoreDocument(ctx context.Context, doc Document) error {
	return r.StoreDocumentsBatch(ctx, []Document{doc})
}

func (r *RedisVectorDB) StoreDocumentsBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	if r.indexConfig == nil {
		return ErrIndexNotCreated
	}

	vectors, err := embedDocuments(ctx, r.embedClient, docs, r.opts)
	if err != nil {
		return err
	}

	return r.StoreEmbeddings(ctx, docs, vectors)
}

func (r *RedisVectorDB) StoreEmbeddings(ctx context.Context, docs []Document, vectors [][]float64) error {
	if len(docs) == 0 {
		return nil
	}

	if r.indexConfig == nil {
		return ErrIndexNotCreated
	}

	if len(docs) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d documents", len(vectors), len(docs))
	}

	docs = assignIDs(docs)
	pipe := r.client.Pipeline()

	for i, doc := range docs {
		vec := vectors[i]

		if len(vec) != r.indexConfig.Dimensions {
			return fmt.Errorf("document %s: embedding dimension mismatch: got %d, expected %d",
				doc.ID, len(vec), r.indexConfig.Dimensions)
		}

		b, err := json.Marshal(doc.Meta)
		if err != nil {
			return fmt.Errorf("document %s: failed to marshal metadata: %w", doc.ID, err)
		}

		docData := map[string]interface{}{
			"id":        doc.ID,
			"content":   doc.Content,
			"metadata":  string(b),
			"embedding": encodeFloat32Vector(toFloat32(vec)),
		}
		for _, field := range r.indexConfig.FilterFields {
			if v, ok := doc.Meta[field]; ok {
				docData[field] = fmt.Sprint(v)
			}
		}

		pipe.HSet(ctx, r.key(doc.ID), docData)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}

	return nil
}

func (r *RedisVectorDB) UpdateDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required for update")
	}

	return r.StoreDocument(ctx, doc)
}

func (r *RedisVectorDB) GetDocument(ctx context.Context, id string) (Document, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	if len(fields) == 0 {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return documentFromFields(fields)
}

func (r *RedisVectorDB) DeleteDocument(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func (r *RedisVectorDB) Count(ctx context.Context) (int, error) {
	info, err := r.client.FTInfo(ctx, r.index).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read index info: %w", err)
	}

	return info.NumDocs, nil
}

func (r *RedisVectorDB) Peek(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		return []Document{}, nil
	}

	result, err := r.client.FTSearchWithArgs(ctx, r.index, "*", &redis.FTSearchOptions{
		DialectVersion: 2,
		Limit:          limit,
		Return: []redis.FTSearchReturn{
			{FieldName: "id"},
			{FieldName: "content"},
			{FieldName: "metadata"},
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek: %w", err)
	}

	docs := make([]Document, 0, len(result.Docs))
	for _, d := range result.Docs {
		doc, err := documentFromFields(d.Fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (r *RedisVectorDB) SearchDocuments(ctx context.Context, search DocumentSearch) ([]DocumentWithScore, error) {
	if r.indexConfig == nil {
		return []DocumentWithScore{}, ErrIndexNotCreated
	}

	if search.TopK <= 0 {
		return []DocumentWithScore{}, fmt.Errorf("TopK must be positive, got %d", search.TopK)
	}

	queryVec, err := embedQuery(ctx, r.embedClient, search.Query)
	if err != nil {
		return []DocumentWithScore{}, err
	}

	if len(queryVec) != r.indexConfig.Dimensions {
		return []DocumentWithScore{}, fmt.Errorf("query vector dimension mismatch: got %d, expected %d",
			len(queryVec), r.indexConfig.Dimensions)
	}

	query := fmt.Sprintf("%s=>[KNN %d @embedding $vec AS score]", filterQuery(search.Filters), search.TopK)

	result, err := r.client.FTSearchWithArgs(
		ctx,
		r.index,
		query,
		&redis.FTSearchOptions{
			DialectVersion: 2,
			Params: map[string]interface{}{
				"vec": encodeFloat32Vector(toFloat32(queryVec)),
			},
			Return: []redis.FTSearchReturn{
				{FieldName: "id"},
				{FieldName: "content"},
				{FieldName: "metadata"},
				{FieldName: "score"},
			},
			SortBy: []redis.FTSearchSortBy{{FieldName: "score", Asc: true}},
			Limit:  search.TopK,
		},
	).Result()

	if err != nil {
		return []DocumentWithScore{}, fmt.Errorf("failed to search: %w", err)
	}

	docs := make([]DocumentWithScore, 0, len(result.Docs))

	for _, d := range result.Docs {
		doc, err := documentFromFields(d.Fields)
		if err != nil {
			return []DocumentWithScore{}, err
		}

		score, err := strconv.ParseFloat(d.Fields["score"], 64)
		if err != nil {
			return []DocumentWithScore{}, fmt.Errorf("invalid score for doc %s: %w", doc.ID, err)
		}

		docs = append(docs, DocumentWithScore{Document: doc, Score: score})
	}

	return docs, nil
}

func documentFromFields(fields map[string]string) (Document, error) {
	doc := Document{
		ID:      fields["id"],
		Content: fields["content"],
		Meta:    make(map[string]any),
	}

	if v := fields["metadata"]; v != "" {
		if err := json.Unmarshal([]byte(v), &doc.Meta); err != nil {
			return Document{}, fmt.Errorf("failed to unmarshal metadata for doc %s: %w", doc.ID, err)
		}
	}

	return doc, nil
}

// filterQuery renders equality filters as TAG clauses; no filters match all.
func filterQuery(filters map[string]any) string {
	if len(filters) == 0 {
		return "*"
	}

	fields := lo.Keys(filters)
	sort.Strings(fields)

	clauses := lo.Map(fields, func(field string, _ int) string {
		return fmt.Sprintf("@%s:{%s}", field, escapeTag(fmt.Sprint(filters[field])))
	})

	return "(" + strings.Join(clauses, " ") + ")"
}

func escapeTag(v string) string {
	var b strings.Builder
	for _, r := range v {
		if strings.ContainsRune(",.<>{}[]\"':;!@#$%^&*()-+=~|/\\ ", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
