package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/vector"
)

// MaxInstructionLength bounds update instructions.
const MaxInstructionLength = 10_000

// DefaultConflictRetries is how many times an update re-reads and
// regenerates after losing a version race.
const DefaultConflictRetries = 3

// MaintainerConfig wires the maintenance agent.
type MaintainerConfig struct {
	LLM       *LLM
	Docs      DocumentStore
	Retriever Retriever
	Syncer    Syncer
	Logger    *slog.Logger

	ConflictRetries int           // 0 applies DefaultConflictRetries
	ContextTopK     int           // 0 applies vector.DefaultTopK
	QueryTimeout    time.Duration // 0 applies the vector package default
}

func (cfg MaintainerConfig) validate() error {
	if cfg.LLM == nil {
		return errors.New("llm is required")
	}
	if cfg.Docs == nil {
		return errors.New("document store is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Syncer == nil {
		return errors.New("syncer is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Maintainer revises stored documents on instruction and audits them
// for consistency. Version writes are optimistic; see Update.
type Maintainer struct {
	llm             *LLM
	docs            DocumentStore
	retriever       Retriever
	syncer          Syncer
	logger          *slog.Logger
	conflictRetries int
	topK            int
	queryTimeout    time.Duration
}

// NewMaintainer creates the maintenance agent.
func NewMaintainer(cfg MaintainerConfig) (*Maintainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	retries := cfg.ConflictRetries
	if retries <= 0 {
		retries = DefaultConflictRetries
	}
	topK := cfg.ContextTopK
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	return &Maintainer{
		llm:             cfg.LLM,
		docs:            cfg.Docs,
		retriever:       cfg.Retriever,
		syncer:          cfg.Syncer,
		logger:          cfg.Logger,
		conflictRetries: retries,
		topK:            topK,
		queryTimeout:    cfg.QueryTimeout,
	}, nil
}

// UpdateRequest describes one revision of a document.
type UpdateRequest struct {
	DocID        uuid.UUID
	Instruction  string
	UseRetrieval bool
	RequestedBy  string // recorded as created_by; empty falls back to the store default
}

// Validate checks the request bounds before any store or model call.
func (r UpdateRequest) Validate() error {
	if r.DocID == uuid.Nil {
		return fmt.Errorf("%w: zero doc id", document.ErrNotFound)
	}
	if strings.TrimSpace(r.Instruction) == "" {
		return ErrEmptyInstruction
	}
	if len(r.Instruction) > MaxInstructionLength {
		return fmt.Errorf("%w: %d bytes (max %d)",
			ErrInstructionTooLong, len(r.Instruction), MaxInstructionLength)
	}
	return nil
}

// UpdateResult reports what an update produced.
type UpdateResult struct {
	DocID   uuid.UUID
	Version int    // version now current
	Content string // content of that version
	Changed bool   // false when the model returned the document unchanged
	Synced  bool   // false when index sync is deferred to reconciliation
}

// Update applies an instruction to the document's current version.
//
// The version write is optimistic: when another writer advances the
// document between read and append, Update re-reads and regenerates
// from the fresh content, up to the configured bound, then surfaces
// the conflict. A model reply identical to the current content is a
// successful no-op and writes nothing.
//
// Retrieval is an enhancement, not a precondition: an empty or failing
// index query logs a warning and the revision proceeds without
// context.
func (m *Maintainer) Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var conflictErr error
	for attempt := 0; attempt <= m.conflictRetries; attempt++ {
		res, err := m.updateOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, document.ErrVersionConflict) {
			return nil, err
		}
		conflictErr = err
		m.logger.Debug("version conflict, retrying with fresh read",
			"doc_id", req.DocID,
			"attempt", attempt+1,
		)
	}

	return nil, fmt.Errorf("update lost %d version races: %w",
		m.conflictRetries+1, conflictErr)
}

func (m *Maintainer) updateOnce(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	doc, current, err := m.docs.GetCurrent(ctx, req.DocID)
	if err != nil {
		return nil, fmt.Errorf("loading current version: %w", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	contextBlock := ""
	if req.UseRetrieval {
		contextBlock = m.retrieveContext(ctx, req.DocID, req.Instruction, nonce)
	}

	prompt := fmt.Sprintf(maintenancePrompt,
		sanitizeDelimiters(doc.Title),
		sanitizeDelimiters(req.Instruction),
		contextBlock,
		nonce, sanitizeDelimiters(current.Content), nonce,
	)

	revised, err := m.llm.Generate(ctx, maintenanceSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaintenance, err)
	}

	revised = stripWrappingFence(revised)
	if err := validateOutput(revised, doc.Type); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaintenance, err)
	}

	if strings.TrimSpace(revised) == strings.TrimSpace(current.Content) {
		m.logger.Debug("update is a no-op, keeping current version",
			"doc_id", req.DocID,
			"version", current.Number,
		)
		return &UpdateResult{
			DocID:   doc.ID,
			Version: current.Number,
			Content: current.Content,
			Changed: false,
			Synced:  true,
		}, nil
	}

	version, err := m.docs.AppendVersion(ctx, document.AppendVersionParams{
		DocID:           req.DocID,
		ExpectedVersion: current.Number,
		Content:         revised,
		CreatedBy:       req.RequestedBy,
	})
	if err != nil {
		// ErrVersionConflict propagates for the caller's retry loop.
		return nil, fmt.Errorf("appending version: %w", err)
	}

	synced := true
	if err := m.syncer.Sync(ctx, req.DocID, current.Number, version.Number, revised); err != nil {
		synced = false
		m.logger.Warn("index sync failed, reconciliation will repair",
			"doc_id", req.DocID,
			"version", version.Number,
			"error", err,
		)
	}

	m.logger.Info("document updated",
		"doc_id", req.DocID,
		"version", version.Number,
		"synced", synced,
	)

	return &UpdateResult{
		DocID:   doc.ID,
		Version: version.Number,
		Content: revised,
		Changed: true,
		Synced:  synced,
	}, nil
}

// retrieveContext queries the index for chunks similar to the
// instruction, scoped to the document. Failures degrade to no context.
func (m *Maintainer) retrieveContext(ctx context.Context, docID uuid.UUID, instruction, nonce string) string {
	opts := []vector.QueryOption{
		vector.WithDocID(docID),
		vector.WithTopK(m.topK),
	}
	if m.queryTimeout > 0 {
		opts = append(opts, vector.WithTimeout(m.queryTimeout))
	}

	results, err := m.retriever.Search(ctx, instruction, opts...)
	if err != nil {
		m.logger.Warn("context retrieval failed, proceeding without",
			"doc_id", docID,
			"error", err,
		)
		return ""
	}
	if len(results) == 0 {
		return ""
	}
	return formatContext(results, nonce)
}
