package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store persists chunk embeddings in the document_chunks table.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a vector Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Upsert writes all chunks in one transaction, keyed on chunk id. Re-running
// the same version's chunks is a no-op update, so a crashed sync can simply
// be repeated.
func (s *Store) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO document_chunks (chunk_id, doc_id, version_number, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (chunk_id) DO UPDATE
			 SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
			c.ID, c.DocID, c.Version, c.Index, c.Content, c.Embedding,
		)
		if err != nil {
			return fmt.Errorf("upserting chunk %d of document %s: %w", c.Index, c.DocID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk upsert: %w", err)
	}

	s.logger.Debug("upserted chunks",
		"doc_id", chunks[0].DocID, "version", chunks[0].Version, "count", len(chunks))
	return nil
}

// DeleteStale removes every chunk of a document except those belonging to
// keepVersion. Returns the number of rows removed.
func (s *Store) DeleteStale(ctx context.Context, docID uuid.UUID, keepVersion int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE doc_id = $1 AND version_number <> $2`,
		docID, keepVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting stale chunks: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("deleted stale chunks", "doc_id", docID, "keep_version", keepVersion, "count", n)
		return n, nil
	}
	return 0, nil
}

// DeleteBeyond removes chunks of one document version whose index is at or
// past firstIndex. Reconciliation needs it when a version re-chunks to fewer
// pieces than the index holds, which happens after the chunk size
// configuration changes: the upsert refreshes the surviving indexes and this
// trims the rest.
func (s *Store) DeleteBeyond(ctx context.Context, docID uuid.UUID, version, firstIndex int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks
		 WHERE doc_id = $1 AND version_number = $2 AND chunk_index >= $3`,
		docID, version, firstIndex,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting trailing chunks: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("deleted trailing chunks", "doc_id", docID, "version", version, "count", n)
		return n, nil
	}
	return 0, nil
}

// DeleteDoc removes all chunks of a document. Returns the number of rows
// removed.
func (s *Store) DeleteDoc(ctx context.Context, docID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("deleting document chunks: %w", err)
	}
	n := tag.RowsAffected()
	s.logger.Debug("deleted document chunks", "doc_id", docID, "count", n)
	return n, nil
}

// Query returns the chunks nearest to the given embedding by cosine
// distance. An empty index yields an empty slice, never an error.
func (s *Store) Query(ctx context.Context, embedding pgvector.Vector, opts ...QueryOption) ([]Result, error) {
	cfg := buildQueryConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	rows, err := s.pool.Query(queryCtx,
		`SELECT chunk_id, doc_id, version_number, chunk_index, content,
		        1 - (embedding <=> $1) AS similarity
		 FROM document_chunks
		 WHERE ($2::uuid IS NULL OR doc_id = $2)
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		embedding, cfg.docID, cfg.topK,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("similarity query timeout: %w", err)
		}
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, cfg.topK)
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.ChunkID, &r.DocID, &r.Version, &r.Index, &r.Content, &r.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

// IndexedVersions returns the distinct version numbers present in the index
// for a document, ascending. A fully synced document reports exactly its
// current version; anything else is work for the reconciler.
func (s *Store) IndexedVersions(ctx context.Context, docID uuid.UUID) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT version_number FROM document_chunks
		 WHERE doc_id = $1 ORDER BY version_number`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying indexed versions: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	return versions, nil
}

// AllIndexedVersions returns every (document, version) pair present in the
// index, for reconciling the whole index in one pass.
func (s *Store) AllIndexedVersions(ctx context.Context) (map[uuid.UUID][]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc_id, version_number FROM document_chunks
		 GROUP BY doc_id, version_number
		 ORDER BY doc_id, version_number`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying all indexed versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[uuid.UUID][]int)
	for rows.Next() {
		var id uuid.UUID
		var v int
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("scanning indexed version: %w", err)
		}
		versions[id] = append(versions[id], v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating indexed versions: %w", err)
	}
	return versions, nil
}

// CountForVersion returns how many chunks a document version has in the
// index.
func (s *Store) CountForVersion(ctx context.Context, docID uuid.UUID, version int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM document_chunks WHERE doc_id = $1 AND version_number = $2`,
		docID, version,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
