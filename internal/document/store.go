package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// documentCols is the standard SELECT column list for scanDocuments.
const documentCols = `id, title, doc_type, owner_id, current_version, created_at, updated_at`

// versionCols is the standard SELECT column list for scanVersions.
// source_excerpt is nullable in the schema; empty string means none.
const versionCols = `doc_id, version_number, content, COALESCE(source_excerpt, ''), created_by, created_at`

// Store persists documents and their version lineage.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a document Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateParams describes a new document with its initial content.
type CreateParams struct {
	Title         string
	Type          Type
	OwnerID       string
	Content       string
	SourceExcerpt string
	CreatedBy     string
}

// Validate checks field bounds before any database work.
func (p CreateParams) Validate() error {
	if err := ValidateTitle(p.Title); err != nil {
		return err
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}
	return ValidateContent(p.Content)
}

// Create inserts a new document at version 1 together with its initial
// version row, atomically.
func (s *Store) Create(ctx context.Context, params CreateParams) (*Document, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	createdBy := params.CreatedBy
	if createdBy == "" {
		createdBy = DefaultCreatedBy
	}

	doc := &Document{
		ID:             uuid.New(),
		Title:          params.Title,
		Type:           params.Type,
		OwnerID:        params.OwnerID,
		CurrentVersion: 1,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO documents (id, title, doc_type, owner_id, current_version)
		 VALUES ($1, $2, $3, $4, 1)
		 RETURNING created_at, updated_at`,
		doc.ID, doc.Title, doc.Type, doc.OwnerID,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO document_versions (doc_id, version_number, content, source_excerpt, created_by)
		 VALUES ($1, 1, $2, NULLIF($3, ''), $4)`,
		doc.ID, params.Content, params.SourceExcerpt, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting initial version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing document create: %w", err)
	}

	s.logger.Debug("created document",
		"id", doc.ID, "doc_type", doc.Type, "content_length", len(params.Content))
	return doc, nil
}

// AppendVersionParams describes a new version appended to an existing
// document lineage.
type AppendVersionParams struct {
	DocID uuid.UUID

	// ExpectedVersion is the version the caller read before producing
	// the new content. The append succeeds only if it still matches.
	ExpectedVersion int

	Content       string
	SourceExcerpt string
	CreatedBy     string
}

// AppendVersion advances the document to ExpectedVersion+1 and records the
// new content as an immutable version row.
//
// The counter advance is a compare-and-increment: if a concurrent writer has
// already moved the document past ExpectedVersion, AppendVersion returns
// ErrVersionConflict and writes nothing. Callers re-read the current version
// and retry.
func (s *Store) AppendVersion(ctx context.Context, params AppendVersionParams) (*Version, error) {
	if err := ValidateContent(params.Content); err != nil {
		return nil, err
	}
	if params.ExpectedVersion < 1 {
		return nil, fmt.Errorf("%w: expected version %d is not positive",
			ErrVersionConflict, params.ExpectedVersion)
	}
	createdBy := params.CreatedBy
	if createdBy == "" {
		createdBy = DefaultCreatedBy
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	version := &Version{
		DocID:         params.DocID,
		Content:       params.Content,
		SourceExcerpt: params.SourceExcerpt,
		CreatedBy:     createdBy,
	}

	err = tx.QueryRow(ctx,
		`UPDATE documents
		 SET current_version = current_version + 1, updated_at = now()
		 WHERE id = $1 AND current_version = $2
		 RETURNING current_version`,
		params.DocID, params.ExpectedVersion,
	).Scan(&version.Number)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		var current int
		probeErr := tx.QueryRow(ctx,
			`SELECT current_version FROM documents WHERE id = $1`,
			params.DocID,
		).Scan(&current)
		switch {
		case errors.Is(probeErr, pgx.ErrNoRows):
			return nil, ErrNotFound
		case probeErr != nil:
			return nil, fmt.Errorf("probing current version: %w", probeErr)
		}
		return nil, fmt.Errorf("%w: expected %d, current %d",
			ErrVersionConflict, params.ExpectedVersion, current)
	case err != nil:
		return nil, fmt.Errorf("advancing version counter: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO document_versions (doc_id, version_number, content, source_excerpt, created_by)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 RETURNING created_at`,
		params.DocID, version.Number, params.Content, params.SourceExcerpt, createdBy,
	).Scan(&version.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting version %d: %w", version.Number, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing version append: %w", err)
	}

	s.logger.Debug("appended version",
		"doc_id", params.DocID, "version", version.Number, "created_by", createdBy)
	return version, nil
}

// UpdateMeta changes a document's title or type without touching its
// version lineage. Empty arguments leave the corresponding field as is.
func (s *Store) UpdateMeta(ctx context.Context, docID uuid.UUID, title string, docType Type) (*Document, error) {
	if title != "" {
		if err := ValidateTitle(title); err != nil {
			return nil, err
		}
	}
	if docType != "" && !docType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, docType)
	}

	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`UPDATE documents
		 SET title = COALESCE(NULLIF($2, ''), title),
		     doc_type = COALESCE(NULLIF($3, ''), doc_type),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+documentCols,
		docID, title, string(docType),
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("updating document metadata: %w", err)
	}

	s.logger.Debug("updated document metadata", "id", docID, "title", doc.Title, "doc_type", doc.Type)
	return doc, nil
}

// Get returns the document head by id.
func (s *Store) Get(ctx context.Context, docID uuid.UUID) (*Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = $1`, docID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return doc, nil
}

// GetCurrent returns the document head together with its current version
// content in one consistent read.
func (s *Store) GetCurrent(ctx context.Context, docID uuid.UUID) (*Document, *Version, error) {
	doc := &Document{}
	version := &Version{}
	err := s.pool.QueryRow(ctx,
		`SELECT d.id, d.title, d.doc_type, d.owner_id, d.current_version, d.created_at, d.updated_at,
		        v.version_number, v.content, COALESCE(v.source_excerpt, ''), v.created_by, v.created_at
		 FROM documents d
		 JOIN document_versions v
		   ON v.doc_id = d.id AND v.version_number = d.current_version
		 WHERE d.id = $1`,
		docID,
	).Scan(
		&doc.ID, &doc.Title, &doc.Type, &doc.OwnerID, &doc.CurrentVersion, &doc.CreatedAt, &doc.UpdatedAt,
		&version.Number, &version.Content, &version.SourceExcerpt, &version.CreatedBy, &version.CreatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil, ErrNotFound
	case err != nil:
		return nil, nil, fmt.Errorf("querying current version: %w", err)
	}
	version.DocID = doc.ID
	return doc, version, nil
}

// GetVersion returns one historical version of a document.
func (s *Store) GetVersion(ctx context.Context, docID uuid.UUID, number int) (*Version, error) {
	version, err := scanVersion(s.pool.QueryRow(ctx,
		`SELECT `+versionCols+`
		 FROM document_versions
		 WHERE doc_id = $1 AND version_number = $2`,
		docID, number))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Distinguish a missing document from a missing version.
		if _, getErr := s.Get(ctx, docID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: version %d", ErrVersionNotFound, number)
	case err != nil:
		return nil, fmt.Errorf("querying version: %w", err)
	}
	return version, nil
}

// History returns all versions of a document, newest first.
func (s *Store) History(ctx context.Context, docID uuid.UUID) ([]*Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionCols+`
		 FROM document_versions
		 WHERE doc_id = $1
		 ORDER BY version_number DESC`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		if _, getErr := s.Get(ctx, docID); getErr != nil {
			return nil, getErr
		}
	}
	return versions, nil
}

// ListParams filters and pages a document listing. Zero values mean no
// filter.
type ListParams struct {
	OwnerID string
	Type    Type
	Limit   int
	Offset  int
}

// List limits to keep a single response bounded.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// List returns document heads ordered by last update, newest first.
func (s *Store) List(ctx context.Context, params ListParams) ([]*Document, error) {
	if params.Type != "" && !params.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, params.Type)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(params.Offset, 0)

	rows, err := s.pool.Query(ctx,
		`SELECT `+documentCols+`
		 FROM documents
		 WHERE ($1 = '' OR owner_id = $1)
		   AND ($2 = '' OR doc_type = $2)
		 ORDER BY updated_at DESC, id
		 LIMIT $3 OFFSET $4`,
		params.OwnerID, string(params.Type), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// CurrentVersions returns the current version counter for every document.
// Reconciliation uses this as the authoritative truth to compare the vector
// index against.
func (s *Store) CurrentVersions(ctx context.Context) (map[uuid.UUID]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, current_version FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("querying current versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var current int
		if err := rows.Scan(&id, &current); err != nil {
			return nil, fmt.Errorf("scanning current version: %w", err)
		}
		versions[id] = current
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating current versions: %w", err)
	}
	return versions, nil
}

// Delete removes a document, its versions, and its chunk rows (via
// cascading foreign keys).
func (s *Store) Delete(ctx context.Context, docID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	doc := &Document{}
	if err := row.Scan(
		&doc.ID, &doc.Title, &doc.Type, &doc.OwnerID,
		&doc.CurrentVersion, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return doc, nil
}

func scanDocuments(rows pgx.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func scanVersion(row pgx.Row) (*Version, error) {
	v := &Version{}
	if err := row.Scan(
		&v.DocID, &v.Number, &v.Content, &v.SourceExcerpt, &v.CreatedBy, &v.CreatedAt,
	); err != nil {
		return nil, err
	}
	return v, nil
}

func scanVersions(rows pgx.Rows) ([]*Version, error) {
	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	return versions, nil
}
