package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mhrlife/troly-index/embedding"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		distance_metric TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	);
`

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

func sqliteDSN(path string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}

	return path + "?" + strings.Join(params, "&")
}

// OpenSQLite opens (creating if needed) a database file that can hold many
// collections.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}

	return db, nil
}

// CheckpointSQLite folds the write-ahead log into the database file and
// truncates it, so the file alone holds every committed row.
func CheckpointSQLite(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("vector store not found: %w", err)
	}

	db, err := OpenSQLite(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint %s: %w", path, err)
	}

	return nil
}

type CollectionInfo struct {
	Name           string
	Dimensions     int
	DistanceMetric string
	Count          int
}

// ListCollections reports every collection in the database with its size.
func ListCollections(ctx context.Context, db *sql.DB) ([]CollectionInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.name, c.dimensions, c.distance_metric, COUNT(d.id)
		FROM collections c LEFT JOIN documents d ON d.collection = c.name
		GROUP BY c.name ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Dimensions, &info.DistanceMetric, &info.Count); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

// SQLiteVectorDB is one collection in a SQLite database. Search is an exact
// scan over the collection.
type SQLiteVectorDB struct {
	db          *sql.DB
	collection  string
	embedClient embedding.Client
	opts        options
	indexConfig *IndexConfig
}

func NewSQLiteVectorDB(db *sql.DB, collection string, embeddingClient embedding.Client, opts ...Option) *SQLiteVectorDB {
	return &SQLiteVectorDB{
		db:          db,
		collection:  collection,
		embedClient: embeddingClient,
		opts:        buildOptions(opts),
	}
}

func (s *SQLiteVectorDB) Collection() string { return s.collection }

// CreateIndex creates the collection, or opens it if it exists. Zero values
// in config adopt what the existing collection was created with.
func (s *SQLiteVectorDB) CreateIndex(ctx context.Context, config IndexConfig) error {
	if config.Dimensions < 0 {
		return fmt.Errorf("dimensions must not be negative, got %d", config.Dimensions)
	}

	var existing IndexConfig
	err := s.db.QueryRowContext(ctx,
		"SELECT dimensions, distance_metric FROM collections WHERE name = ?", s.collection,
	).Scan(&existing.Dimensions, &existing.DistanceMetric)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		metric, err := normalizeMetric(config.DistanceMetric)
		if err != nil {
			return err
		}
		config.DistanceMetric = metric

		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO collections (name, dimensions, distance_metric) VALUES (?, ?, ?)",
			s.collection, config.Dimensions, config.DistanceMetric,
		); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

	case err != nil:
		return fmt.Errorf("failed to read collection: %w", err)

	default:
		if config.DistanceMetric != "" {
			metric, err := normalizeMetric(config.DistanceMetric)
			if err != nil {
				return err
			}
			if metric != existing.DistanceMetric {
				return fmt.Errorf("collection %s uses %s, not %s", s.collection, existing.DistanceMetric, metric)
			}
		}
		if config.Dimensions != 0 && existing.Dimensions != 0 && config.Dimensions != existing.Dimensions {
			return fmt.Errorf("collection %s has %d dimensions, not %d", s.collection, existing.Dimensions, config.Dimensions)
		}
		if existing.Dimensions == 0 {
			existing.Dimensions = config.Dimensions
		}
		existing.FilterFields = config.FilterFields
		config = existing
	}

	s.indexConfig = &config
	return nil
}

func (s *SQLiteVectorDB) StoreDocument(ctx context.Context, doc Document) error {
	return s.StoreDocumentsBatch(ctx, []Document{doc})
}

func (s *SQLiteVectorDB) StoreDocumentsBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	if s.indexConfig == nil {
		return ErrIndexNotCreated
	}

	vectors, err := embedDocuments(ctx, s.embedClient, docs, s.opts)
	if err != nil {
		return err
	}

	return s.StoreEmbeddings(ctx, docs, vectors)
}

func (s *SQLiteVectorDB) StoreEmbeddings(ctx context.Context, docs []Document, vectors [][]float64) error {
	if len(docs) == 0 {
		return nil
	}

	if s.indexConfig == nil {
		return ErrIndexNotCreated
	}

	if len(docs) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d documents", len(vectors), len(docs))
	}

	if err := s.fixDimensions(ctx, len(vectors[0])); err != nil {
		return err
	}

	docs = assignIDs(docs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO documents (collection, id, content, metadata, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, doc := range docs {
		vec := vectors[i]

		if len(vec) != s.indexConfig.Dimensions {
			return fmt.Errorf("document %s: embedding dimension mismatch: got %d, expected %d",
				doc.ID, len(vec), s.indexConfig.Dimensions)
		}

		meta, err := json.Marshal(doc.Meta)
		if err != nil {
			return fmt.Errorf("document %s: failed to marshal metadata: %w", doc.ID, err)
		}

		if _, err := stmt.ExecContext(ctx, s.collection, doc.ID, doc.Content, string(meta), encodeFloat32Vector(toFloat32(vec))); err != nil {
			return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}

	return nil
}

// fixDimensions records the dimension of the first vector stored in a
// collection created without one.
func (s *SQLiteVectorDB) fixDimensions(ctx context.Context, dims int) error {
	if s.indexConfig.Dimensions != 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE collections SET dimensions = ? WHERE name = ? AND dimensions = 0", dims, s.collection,
	); err != nil {
		return fmt.Errorf("failed to record dimensions: %w", err)
	}

	s.indexConfig.Dimensions = dims
	return nil
}

func (s *SQLiteVectorDB) UpdateDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required for update")
	}

	return s.StoreDocument(ctx, doc)
}

func (s *SQLiteVectorDB) GetDocument(ctx context.Context, id string) (Document, error) {
	var (
		doc  Document
		meta sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT id, content, metadata FROM documents WHERE collection = ? AND id = ?", s.collection, id,
	).Scan(&doc.ID, &doc.Content, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}

	doc.Meta, err = decodeMeta(meta)
	if err != nil {
		return Document{}, fmt.Errorf("document %s: %w", id, err)
	}

	return doc, nil
}

func (s *SQLiteVectorDB) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", s.collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

func (s *SQLiteVectorDB) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	return n, nil
}

// Peek returns the first limit documents in insertion order.
func (s *SQLiteVectorDB) Peek(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		return []Document{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata FROM documents WHERE collection = ? ORDER BY rowid LIMIT ?", s.collection, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to peek: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		var (
			doc  Document
			meta sql.NullString
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &meta); err != nil {
			return nil, err
		}
		if doc.Meta, err = decodeMeta(meta); err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (s *SQLiteVectorDB) SearchDocuments(ctx context.Context, search DocumentSearch) ([]DocumentWithScore, error) {
	if s.indexConfig == nil {
		return []DocumentWithScore{}, ErrIndexNotCreated
	}

	if search.TopK <= 0 {
		return []DocumentWithScore{}, fmt.Errorf("TopK must be positive, got %d", search.TopK)
	}

	queryVec, err := embedQuery(ctx, s.embedClient, search.Query)
	if err != nil {
		return []DocumentWithScore{}, err
	}

	if s.indexConfig.Dimensions != 0 && len(queryVec) != s.indexConfig.Dimensions {
		return []DocumentWithScore{}, fmt.Errorf("query vector dimension mismatch: got %d, expected %d",
			len(queryVec), s.indexConfig.Dimensions)
	}
	query32 := toFloat32(queryVec)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata, embedding FROM documents WHERE collection = ? ORDER BY rowid", s.collection)
	if err != nil {
		return []DocumentWithScore{}, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []DocumentWithScore
	for rows.Next() {
		var (
			hit  DocumentWithScore
			meta sql.NullString
			blob []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Content, &meta, &blob); err != nil {
			return []DocumentWithScore{}, err
		}

		if hit.Meta, err = decodeMeta(meta); err != nil {
			return []DocumentWithScore{}, fmt.Errorf("failed to unmarshal metadata for doc %s: %w", hit.ID, err)
		}
		if !matchesFilters(hit.Meta, search.Filters) {
			continue
		}

		vec := decodeFloat32Vector(blob)
		if len(vec) != len(query32) {
			continue
		}

		hit.Score = distance(s.indexConfig.DistanceMetric, query32, vec)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return []DocumentWithScore{}, fmt.Errorf("failed to search: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	if len(hits) > search.TopK {
		hits = hits[:search.TopK]
	}
	if hits == nil {
		hits = []DocumentWithScore{}
	}

	return hits, nil
}

func decodeMeta(raw sql.NullString) (map[string]any, error) {
	meta := make(map[string]any)
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return meta, nil
	}

	if err := json.Unmarshal([]byte(raw.String), &meta); err != nil {
		return nil, err
	}

	return meta, nil
}
