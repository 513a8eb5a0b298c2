package document

import "errors"

var (
	// ErrNotFound indicates the document id does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrVersionNotFound indicates the document exists but the requested
	// version does not.
	ErrVersionNotFound = errors.New("document version not found")

	// ErrVersionConflict indicates a compare-and-increment lost to a
	// concurrent writer: the expected version no longer matches the
	// current one. Callers retry by re-reading the current version.
	ErrVersionConflict = errors.New("document version conflict")

	// ErrInvalidTitle indicates a title outside the length bounds.
	ErrInvalidTitle = errors.New("invalid document title")

	// ErrInvalidType indicates an unknown document type.
	ErrInvalidType = errors.New("invalid document type")

	// ErrEmptyContent indicates missing document content.
	ErrEmptyContent = errors.New("document content is required")

	// ErrContentTooLong indicates content beyond the size cap.
	ErrContentTooLong = errors.New("document content too long")
)
