package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/askdoc/askdoc/internal/models"
)

// PGBackendConfig represents the configuration for the pgvector backend.
type PGBackendConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// PGBackend is an alternative durable backend on PostgreSQL with the
// pgvector extension: one chunk row per (document, index) pair plus a
// metadata table keyed by document ID.
type PGBackend struct {
	config PGBackendConfig
	pool   *pgxpool.Pool
}

// NewPGBackend connects to the database and prepares the schema.
func NewPGBackend(config PGBackendConfig) (*PGBackend, error) {
	if config.TableName == "" {
		config.TableName = "doc_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &PGBackend{config: config, pool: pool}
	if err := b.initialize(); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PGBackend) metaTable() string { return b.config.TableName + "_meta" }

func (b *PGBackend) initialize() error {
	ctx := context.Background()

	if _, err := b.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			doc_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			source TEXT,
			page INTEGER,
			embedding vector(%d),
			PRIMARY KEY (doc_id, chunk_index)
		)`, b.config.TableName, b.config.VectorDim)
	if _, err := b.pool.Exec(ctx, createChunks); err != nil {
		return fmt.Errorf("failed to create chunk table: %w", err)
	}

	createMeta := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			doc_id TEXT PRIMARY KEY,
			file_name TEXT,
			created_at TIMESTAMPTZ,
			chunk_count INTEGER,
			page_count INTEGER,
			text_length INTEGER
		)`, b.metaTable())
	if _, err := b.pool.Exec(ctx, createMeta); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		b.config.TableName, b.config.TableName)
	if _, err := b.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	return nil
}

func (b *PGBackend) Put(ctx context.Context, docID string, entry *models.IndexEntry, info *models.IndexInfo) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Replace the whole document in one transaction.
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", b.config.TableName), docID); err != nil {
		return fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (doc_id, chunk_index, content, source, page, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`, b.config.TableName)
	for i, chunk := range entry.Chunks {
		meta := entry.Metadata[i]
		if _, err := tx.Exec(ctx, insert,
			docID, i, chunk, meta.Source, meta.Page,
			pgvector.NewVector(entry.Embeddings[i]),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := b.upsertInfo(ctx, tx, docID, info); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *PGBackend) upsertInfo(ctx context.Context, tx pgx.Tx, docID string, info *models.IndexInfo) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (doc_id, file_name, created_at, chunk_count, page_count, text_length)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			created_at = EXCLUDED.created_at,
			chunk_count = EXCLUDED.chunk_count,
			page_count = EXCLUDED.page_count,
			text_length = EXCLUDED.text_length`, b.metaTable())
	if _, err := tx.Exec(ctx, stmt,
		docID, info.FileName, info.CreatedAt, info.ChunkCount, info.PageCount, info.TextLength); err != nil {
		return fmt.Errorf("failed to upsert metadata: %w", err)
	}
	return nil
}

func (b *PGBackend) Get(ctx context.Context, docID string) (*models.IndexEntry, error) {
	query := fmt.Sprintf(`
		SELECT chunk_index, content, source, page, embedding
		FROM %s WHERE doc_id = $1
		ORDER BY chunk_index`, b.config.TableName)
	rows, err := b.pool.Query(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	entry := &models.IndexEntry{}
	for rows.Next() {
		var (
			idx     int
			content string
			source  string
			page    int
			vec     pgvector.Vector
		)
		if err := rows.Scan(&idx, &content, &source, &page, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		entry.Chunks = append(entry.Chunks, content)
		entry.Embeddings = append(entry.Embeddings, vec.Slice())
		entry.Metadata = append(entry.Metadata, models.ChunkMeta{
			Source:     source,
			ChunkIndex: idx,
			Page:       page,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entry.Chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return entry, nil
}

func (b *PGBackend) GetInfo(ctx context.Context, docID string) (*models.IndexInfo, error) {
	query := fmt.Sprintf(`
		SELECT file_name, created_at, chunk_count, page_count, text_length
		FROM %s WHERE doc_id = $1`, b.metaTable())
	info := &models.IndexInfo{}
	err := b.pool.QueryRow(ctx, query, docID).Scan(
		&info.FileName, &info.CreatedAt, &info.ChunkCount, &info.PageCount, &info.TextLength)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	return info, nil
}

func (b *PGBackend) PutInfo(ctx context.Context, docID string, info *models.IndexInfo) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := b.upsertInfo(ctx, tx, docID, info); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (b *PGBackend) Delete(ctx context.Context, docID string) (bool, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", b.config.TableName), docID)
	if err != nil {
		return false, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", b.metaTable()), docID); err != nil {
		return false, fmt.Errorf("failed to delete metadata: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (b *PGBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx,
		fmt.Sprintf("SELECT doc_id FROM %s ORDER BY doc_id", b.metaTable()))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *PGBackend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}
