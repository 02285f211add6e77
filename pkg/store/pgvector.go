package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/internal/types"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
	// Persistent keeps session rows across Close. By default every
	// run works in its own session and cleans up after itself, so one
	// file's context never leaks into another run.
	Persistent bool
}

// VectorStore indexes context documents in pgvector, scoped to a
// session id so concurrent or successive runs stay isolated.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder

	// mu guards sessionID; Reset rotates it while concurrent operations
	// read it.
	mu        sync.RWMutex
	sessionID string
}

func NewWithConfig(config VectorStoreConfig, embedder types.Embedder) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "context_docs"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 2
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config:    config,
		pool:      pool,
		embedder:  embedder,
		sessionID: newSessionID(),
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func newSessionID() string {
	return uuid.NewString()[:8]
}

// SessionID returns the current session identifier.
func (vs *VectorStore) SessionID() string {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.sessionID
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source TEXT,
			title TEXT,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	createSessionIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_session_idx ON %s (session_id)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createSessionIndex)
	if err != nil {
		return fmt.Errorf("failed to create session index: %v", err)
	}

	return nil
}

// Add embeds plain context texts (docstrings, snippets) and indexes
// them under the current session. Empty texts are skipped. Returns how
// many were indexed.
func (vs *VectorStore) Add(ctx context.Context, texts []string) (int, error) {
	var valid []string
	for _, text := range texts {
		if t := strings.TrimSpace(text); t != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	embeddings, err := vs.embedder.CreateEmbedding(ctx, valid)
	if err != nil {
		return 0, fmt.Errorf("failed to create embeddings: %v", err)
	}

	session := vs.SessionID()

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	for i, text := range valid {
		id := contentID(session, text)
		_, err := tx.Exec(ctx, vs.insertStmt(),
			id,
			session,
			"", // source
			"", // title
			text,
			0,
			pgvector.NewVector(embeddings[i]),
			map[string]interface{}{"kind": "snippet"},
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert document: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %v", err)
	}

	return len(valid), nil
}

// Store indexes processed documents chunk by chunk, used by the ingest
// pipeline for imported reference pages.
func (vs *VectorStore) Store(ctx context.Context, docs []models.ProcessedDocument) error {
	session := vs.SessionID()

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	for _, doc := range docs {
		cleanTitle := sanitizeUTF8(doc.Title)

		for i, chunk := range doc.Chunks {
			cleanChunk := sanitizeUTF8(chunk)

			embeddings, err := vs.embedder.CreateEmbedding(ctx, []string{cleanChunk})
			if err != nil {
				return fmt.Errorf("failed to create embeddings: %v", err)
			}

			_, err = tx.Exec(ctx, vs.insertStmt(),
				fmt.Sprintf("%s_%d", contentID(session, doc.Source+cleanChunk), i),
				session,
				doc.Source,
				cleanTitle,
				cleanChunk,
				i,
				pgvector.NewVector(vs.embedder.FlattenEmbeddings(embeddings)),
				doc.Metadata,
			)
			if err != nil {
				return fmt.Errorf("failed to insert document: %v", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (vs *VectorStore) insertStmt() string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, session_id, source, title, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)
}

func contentID(session, text string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("%s_%s", session, hex.EncodeToString(sum[:])[:8])
}

// Query returns the top documents for an embedding, nearest first,
// restricted to the current session.
func (vs *VectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.Document, error) {
	if limit == 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT id, source, title, content, metadata
		FROM %s
		WHERE session_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		vs.config.TableName)

	embedding := pgvector.NewVector(queryEmbedding)
	rows, err := vs.pool.Query(ctx, query, vs.SessionID(), embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %v", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		err := rows.Scan(
			&doc.ID,
			&doc.Source,
			&doc.Title,
			&doc.Content,
			&doc.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// QueryText embeds the text and returns the top matching documents.
func (vs *VectorStore) QueryText(ctx context.Context, text string, limit int) ([]models.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	embeddings, err := vs.embedder.CreateEmbedding(ctx, []string{strings.TrimSpace(text)})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %v", err)
	}

	return vs.Query(ctx, vs.embedder.FlattenEmbeddings(embeddings), limit)
}

// Reset drops the current session's rows and rotates the session id,
// so the next file starts from a clean context.
func (vs *VectorStore) Reset(ctx context.Context) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if err := vs.deleteSession(ctx, vs.sessionID); err != nil {
		return err
	}
	vs.sessionID = newSessionID()
	return nil
}

func (vs *VectorStore) deleteSession(ctx context.Context, session string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE session_id = $1", vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, stmt, session); err != nil {
		return fmt.Errorf("failed to delete session rows: %v", err)
	}
	return nil
}

// Stats describes the current session.
type Stats struct {
	SessionID     string `json:"session_id"`
	DocumentCount int    `json:"document_count"`
	StorageType   string `json:"storage_type"`
}

func (vs *VectorStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		SessionID:   vs.SessionID(),
		StorageType: "session",
	}
	if vs.config.Persistent {
		stats.StorageType = "persistent"
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE session_id = $1", vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, query, stats.SessionID).Scan(&stats.DocumentCount); err != nil {
		return stats, fmt.Errorf("failed to count documents: %v", err)
	}

	return stats, nil
}

// Close releases the pool, cleaning up the session's rows first unless
// the store is persistent.
func (vs *VectorStore) Close() {
	if vs.pool == nil {
		return
	}
	if !vs.config.Persistent {
		// Best effort; the session index makes this cheap.
		_ = vs.deleteSession(context.Background(), vs.SessionID())
	}
	vs.pool.Close()
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
