package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/vector"
)

// MaxAuditFindings caps the findings kept from one audit reply.
const MaxAuditFindings = 10

// maxAuditResponseBytes limits reply size before JSON parsing (32 KB).
const maxAuditResponseBytes = 32 * 1024

// maxFindingFieldBytes caps each finding field kept from the model.
const maxFindingFieldBytes = 1000

// Audit finding severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Finding is one problem the audit reported.
type Finding struct {
	Severity   string `json:"severity"`
	Summary    string `json:"summary"`
	Suggestion string `json:"suggestion,omitempty"`
}

// AuditReport collects the findings for one document version.
type AuditReport struct {
	DocID    uuid.UUID `json:"doc_id"`
	Version  int       `json:"version_number"`
	Model    string    `json:"model"`
	Findings []Finding `json:"findings"`
}

// Audit reviews the document's current version against excerpts
// retrieved from the whole index and reports structured findings. It
// writes nothing. An empty reply or an empty JSON array both mean a
// clean report.
func (m *Maintainer) Audit(ctx context.Context, docID uuid.UUID) (*AuditReport, error) {
	doc, current, err := m.docs.GetCurrent(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("loading current version: %w", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	// Reference excerpts come from the whole corpus so sibling
	// documents on the same topic can contradict this one.
	opts := []vector.QueryOption{vector.WithTopK(m.topK)}
	if m.queryTimeout > 0 {
		opts = append(opts, vector.WithTimeout(m.queryTimeout))
	}
	reference, err := m.retriever.Search(ctx, doc.Title, opts...)
	if err != nil {
		m.logger.Warn("audit retrieval failed, auditing without references",
			"doc_id", docID,
			"error", err,
		)
		reference = nil
	}

	prompt := fmt.Sprintf(auditPrompt, MaxAuditFindings,
		nonce, sanitizeDelimiters(current.Content), nonce,
		nonce, formatReference(reference), nonce,
	)

	text, err := m.llm.Generate(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaintenance, err)
	}

	findings, err := parseFindings(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMaintenance, err)
	}

	m.logger.Debug("document audited",
		"doc_id", docID,
		"version", current.Number,
		"findings", len(findings),
	)

	return &AuditReport{
		DocID:    docID,
		Version:  current.Number,
		Model:    m.llm.ModelName(),
		Findings: findings,
	}, nil
}

// parseFindings decodes and normalizes the audit reply: fenced JSON is
// unwrapped, blank findings dropped, severities clamped to the known
// set, and the list capped at MaxAuditFindings.
func parseFindings(text string) ([]Finding, error) {
	if text == "" {
		return []Finding{}, nil
	}
	if len(text) > maxAuditResponseBytes {
		return nil, fmt.Errorf("%w: audit response is %d bytes",
			ErrMalformedOutput, len(text))
	}

	text = stripCodeFences(text)

	var findings []Finding
	if err := json.Unmarshal([]byte(text), &findings); err != nil {
		return nil, fmt.Errorf("%w: parsing audit findings: %w (raw: %q)",
			ErrMalformedOutput, err, truncate(text, 200))
	}

	valid := findings[:0]
	for _, f := range findings {
		f.Summary = strings.TrimSpace(f.Summary)
		if f.Summary == "" {
			continue
		}
		switch f.Severity {
		case SeverityInfo, SeverityWarning, SeverityCritical:
		default:
			f.Severity = SeverityInfo
		}
		f.Summary = truncate(f.Summary, maxFindingFieldBytes)
		f.Suggestion = truncate(strings.TrimSpace(f.Suggestion), maxFindingFieldBytes)
		valid = append(valid, f)
	}

	if len(valid) > MaxAuditFindings {
		valid = valid[:MaxAuditFindings]
	}
	return valid, nil
}
