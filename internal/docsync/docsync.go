// Package docsync keeps the vector index in step with the document store.
//
// Every index change runs in insert-before-delete order: a new version's
// chunks are embedded and upserted before the previous version's rows are
// swept. Failures therefore leave duplicate or stale rows behind, never a
// gap, and reconciliation repairs the leftovers idempotently. Nothing else
// in the system writes chunk rows.
package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/inkops/inkwell/internal/chunk"
	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/vector"
)

// Defaults applied by NewCoordinator for zero Config fields.
const (
	DefaultEmbedConcurrency = 4
	DefaultDeleteRetries    = 3
	DefaultDeleteBackoff    = 2 * time.Second
)

// sweepRetryTimeout bounds each background sweep attempt.
const sweepRetryTimeout = 30 * time.Second

// Index is the chunk store surface the coordinator writes through.
// Satisfied by *vector.Store.
type Index interface {
	Upsert(ctx context.Context, chunks []vector.Chunk) error
	DeleteStale(ctx context.Context, docID uuid.UUID, keepVersion int) (int64, error)
	DeleteBeyond(ctx context.Context, docID uuid.UUID, version, firstIndex int) (int64, error)
	DeleteDoc(ctx context.Context, docID uuid.UUID) (int64, error)
	IndexedVersions(ctx context.Context, docID uuid.UUID) ([]int, error)
	AllIndexedVersions(ctx context.Context) (map[uuid.UUID][]int, error)
	CountForVersion(ctx context.Context, docID uuid.UUID, version int) (int, error)
}

// Embedder produces one embedding per chunk. Satisfied by *vector.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
}

// DocumentSource reports the authoritative version state that reconciliation
// compares the index against. Satisfied by *document.Store.
type DocumentSource interface {
	GetCurrent(ctx context.Context, id uuid.UUID) (*document.Document, *document.Version, error)
	CurrentVersions(ctx context.Context) (map[uuid.UUID]int, error)
}

var (
	_ Index          = (*vector.Store)(nil)
	_ Embedder       = (*vector.Embedder)(nil)
	_ DocumentSource = (*document.Store)(nil)
)

// Config assembles a Coordinator.
type Config struct {
	Index    Index
	Embedder Embedder
	Docs     DocumentSource
	Chunker  *chunk.Chunker
	Logger   *slog.Logger

	// EmbedConcurrency bounds parallel embedding calls within one sync.
	EmbedConcurrency int
	// EmbedTimeout bounds each embedding call. Zero leaves the caller's
	// context as the only bound.
	EmbedTimeout time.Duration
	// DeleteRetries bounds background sweep attempts after the synchronous
	// sweep fails.
	DeleteRetries int
	// DeleteBackoff is the delay before the first background sweep attempt.
	// It doubles on each subsequent attempt.
	DeleteBackoff time.Duration
	// BackgroundCtx cancels background sweep retries on shutdown.
	BackgroundCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
}

func (c Config) validate() error {
	if c.Index == nil {
		return errors.New("index is required")
	}
	if c.Embedder == nil {
		return errors.New("embedder is required")
	}
	if c.Docs == nil {
		return errors.New("document source is required")
	}
	if c.Chunker == nil {
		return errors.New("chunker is required")
	}
	return nil
}

// Coordinator owns every write to the chunk index. Document writers hand it
// committed versions; it never mutates documents itself.
//
// Coordinator is safe for concurrent use by multiple goroutines.
type Coordinator struct {
	index    Index
	embedder Embedder
	docs     DocumentSource
	chunker  *chunk.Chunker
	logger   *slog.Logger

	embedConcurrency int
	embedTimeout     time.Duration
	deleteRetries    int
	deleteBackoff    time.Duration

	bgCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
	wg    sync.WaitGroup
}

// NewCoordinator creates a Coordinator, applying defaults for zero tuning
// fields.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if cfg.DeleteRetries <= 0 {
		cfg.DeleteRetries = DefaultDeleteRetries
	}
	if cfg.DeleteBackoff <= 0 {
		cfg.DeleteBackoff = DefaultDeleteBackoff
	}
	if cfg.BackgroundCtx == nil {
		cfg.BackgroundCtx = context.Background()
	}
	return &Coordinator{
		index:            cfg.Index,
		embedder:         cfg.Embedder,
		docs:             cfg.Docs,
		chunker:          cfg.Chunker,
		logger:           cfg.Logger,
		embedConcurrency: cfg.EmbedConcurrency,
		embedTimeout:     cfg.EmbedTimeout,
		deleteRetries:    cfg.DeleteRetries,
		deleteBackoff:    cfg.DeleteBackoff,
		bgCtx:            cfg.BackgroundCtx,
	}, nil
}

// Sync brings the index up to a freshly committed document version.
// oldVersion 0 means the document had no prior version.
//
// New chunks are written before old ones are removed. A sweep failure does
// not fail the sync: the new version is already searchable, duplicate hits
// are acceptable, and a bounded background retry plus reconciliation remove
// the leftovers. An embed or insert failure aborts with *SyncError and
// leaves the previous version's chunks serving retrieval.
func (c *Coordinator) Sync(ctx context.Context, docID uuid.UUID, oldVersion, newVersion int, content string) error {
	n, err := c.indexVersion(ctx, docID, newVersion, content)
	if err != nil {
		return err
	}
	if oldVersion > 0 {
		c.sweep(ctx, docID, newVersion)
	}
	c.logger.Debug("version synced",
		"doc_id", docID,
		"version", newVersion,
		"chunks", n,
	)
	return nil
}

// indexVersion embeds and upserts one version's chunks, returning how many
// the content splits into. Zero chunks (empty content) is not an error; the
// version simply has no index presence.
func (c *Coordinator) indexVersion(ctx context.Context, docID uuid.UUID, version int, content string) (int, error) {
	pieces := c.chunker.Split(content)
	if len(pieces) == 0 {
		return 0, nil
	}
	chunks, err := c.embedChunks(ctx, docID, version, pieces)
	if err != nil {
		return 0, &SyncError{Phase: PhaseEmbed, DocID: docID, Version: version, Err: err}
	}
	if err := c.index.Upsert(ctx, chunks); err != nil {
		return 0, &SyncError{Phase: PhaseInsert, DocID: docID, Version: version, Err: err}
	}
	return len(pieces), nil
}

// embedChunks embeds all pieces of one version with bounded parallelism.
// Chunk ids are deterministic, so re-embedding a version overwrites the same
// rows.
func (c *Coordinator) embedChunks(ctx context.Context, docID uuid.UUID, version int, pieces []chunk.Chunk) ([]vector.Chunk, error) {
	chunks := make([]vector.Chunk, len(pieces))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.embedConcurrency)
	for i, piece := range pieces {
		eg.Go(func() error {
			embedCtx := egCtx
			if c.embedTimeout > 0 {
				var cancel context.CancelFunc
				embedCtx, cancel = context.WithTimeout(egCtx, c.embedTimeout)
				defer cancel()
			}
			embedding, err := c.embedder.Embed(embedCtx, piece.Text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", piece.Index, err)
			}
			chunks[i] = vector.Chunk{
				ID:        chunk.ID(docID, version, piece.Index),
				DocID:     docID,
				Version:   version,
				Index:     piece.Index,
				Content:   piece.Text,
				Embedding: embedding,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// sweep removes chunk rows for versions other than keepVersion. A failure is
// logged and handed to a background retry; callers treat the sweep as
// best-effort.
func (c *Coordinator) sweep(ctx context.Context, docID uuid.UUID, keepVersion int) {
	if _, err := c.index.DeleteStale(ctx, docID, keepVersion); err != nil {
		c.logger.Warn("stale chunk sweep failed, retrying in background",
			"doc_id", docID,
			"keep_version", keepVersion,
			"error", err,
		)
		c.retrySweep(docID, keepVersion)
	}
}

// retrySweep retries a failed sweep with doubling backoff until it succeeds
// or the attempts run out. Leftovers past that are reconciliation's job.
func (c *Coordinator) retrySweep(docID uuid.UUID, keepVersion int) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		delay := c.deleteBackoff
		for attempt := 1; attempt <= c.deleteRetries; attempt++ {
			select {
			case <-c.bgCtx.Done():
				return
			case <-time.After(delay):
			}

			sweepCtx, cancel := context.WithTimeout(c.bgCtx, sweepRetryTimeout)
			_, err := c.index.DeleteStale(sweepCtx, docID, keepVersion)
			cancel()
			if err == nil {
				c.logger.Debug("background sweep succeeded",
					"doc_id", docID,
					"attempt", attempt,
				)
				return
			}
			c.logger.Warn("background sweep failed",
				"doc_id", docID,
				"attempt", attempt,
				"error", err,
			)
			delay *= 2
		}
		c.logger.Warn("background sweep exhausted, leaving stale chunks for reconciliation",
			"doc_id", docID,
			"keep_version", keepVersion,
		)
	}()
}

// Wait blocks until all background sweep retries finish. Call during
// shutdown after request traffic has stopped.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
