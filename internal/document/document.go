// Package document manages the versioned document lineage backed by
// PostgreSQL.
//
// Every document carries a monotonically increasing version counter. New
// content never overwrites old content: each change appends an immutable
// version row and advances the counter by exactly one, using a
// compare-and-increment so concurrent writers cannot silently clobber each
// other.
package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type categorizes a document. The category steers generation prompts and
// list filtering.
type Type string

const (
	TypeAPI       Type = "api"
	TypeGuide     Type = "guide"
	TypeReference Type = "reference"
	TypeOther     Type = "other"
)

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	switch t {
	case TypeAPI, TypeGuide, TypeReference, TypeOther:
		return true
	}
	return false
}

// ParseType converts a string to a Type, rejecting unknown values.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

// Validation bounds for document fields.
const (
	MinTitleLength   = 3
	MaxTitleLength   = 200
	MaxContentLength = 100_000
)

// DefaultCreatedBy marks versions produced by the generation or maintenance
// agent rather than a named caller.
const DefaultCreatedBy = "agent"

// Document is the lineage head: identity, metadata, and the current version
// counter. Content lives in Version rows.
type Document struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Type           Type      `json:"doc_type"`
	OwnerID        string    `json:"owner_id,omitempty"`
	CurrentVersion int       `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Version is one immutable content snapshot of a document.
type Version struct {
	DocID         uuid.UUID `json:"doc_id"`
	Number        int       `json:"version_number"`
	Content       string    `json:"content"`
	SourceExcerpt string    `json:"source_excerpt,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// ValidateTitle checks title length bounds.
func ValidateTitle(title string) error {
	if n := len(title); n < MinTitleLength || n > MaxTitleLength {
		return fmt.Errorf("%w: length %d, want %d-%d",
			ErrInvalidTitle, n, MinTitleLength, MaxTitleLength)
	}
	return nil
}

// ValidateContent checks that content is present and within the size cap.
func ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return fmt.Errorf("%w: length %d exceeds maximum %d",
			ErrContentTooLong, len(content), MaxContentLength)
	}
	return nil
}
