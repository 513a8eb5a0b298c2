package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/testutil"
	"github.com/inkops/inkwell/internal/vector"
)

func TestParseFindings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    []Finding
		wantErr error
	}{
		{
			name: "empty reply is clean",
			text: "",
			want: []Finding{},
		},
		{
			name: "empty array",
			text: "[]",
			want: []Finding{},
		},
		{
			name: "valid findings",
			text: `[{"severity": "warning", "summary": "Stale endpoint", "suggestion": "Update it"}]`,
			want: []Finding{{Severity: "warning", Summary: "Stale endpoint", Suggestion: "Update it"}},
		},
		{
			name: "fenced json",
			text: "```json\n[{\"severity\": \"critical\", \"summary\": \"Contradiction\"}]\n```",
			want: []Finding{{Severity: "critical", Summary: "Contradiction"}},
		},
		{
			name: "unknown severity clamps to info",
			text: `[{"severity": "blocker", "summary": "Something"}]`,
			want: []Finding{{Severity: "info", Summary: "Something"}},
		},
		{
			name: "blank summary dropped",
			text: `[{"severity": "info", "summary": "  "}, {"severity": "info", "summary": "Kept"}]`,
			want: []Finding{{Severity: "info", Summary: "Kept"}},
		},
		{
			name:    "not json",
			text:    "the document looks fine to me",
			wantErr: ErrMalformedOutput,
		},
		{
			name:    "wrong shape",
			text:    `{"severity": "info"}`,
			wantErr: ErrMalformedOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseFindings(tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseFindings() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFindings() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("findings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFindings_CapsCount(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("[")
	for i := range MaxAuditFindings + 5 {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"severity": "info", "summary": "finding %d"}`, i)
	}
	sb.WriteString("]")

	got, err := parseFindings(sb.String())
	if err != nil {
		t.Fatalf("parseFindings() error = %v", err)
	}
	if len(got) != MaxAuditFindings {
		t.Errorf("findings = %d, want capped at %d", len(got), MaxAuditFindings)
	}
}

func TestParseFindings_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	_, err := parseFindings(strings.Repeat("x", maxAuditResponseBytes+1))
	if !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("parseFindings() error = %v, want ErrMalformedOutput", err)
	}
}

func TestMaintainer_Audit(t *testing.T) {
	t.Parallel()

	docs := newFakeDocs(document.TypeAPI, "# Login API\n\nTokens never expire.")
	mock := testutil.NewMockLLM(
		`[{"severity": "critical", "summary": "Token expiry contradicts the auth reference", "suggestion": "Document the 24h expiry"}]`)
	fx := newMaintainerFixture(t, mock, docs)
	fx.retriever.results = []vector.Result{
		{Content: "JWT tokens expire after 24 hours."},
	}

	report, err := fx.m.Audit(context.Background(), docs.doc.ID)
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}

	if report.DocID != docs.doc.ID {
		t.Errorf("DocID = %v, want %v", report.DocID, docs.doc.ID)
	}
	if report.Version != 1 {
		t.Errorf("Version = %d, want 1", report.Version)
	}
	if report.Model != "mock/test-model" {
		t.Errorf("Model = %q, want mock model name", report.Model)
	}
	if len(report.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(report.Findings))
	}
	if got := report.Findings[0].Severity; got != SeverityCritical {
		t.Errorf("Severity = %q, want critical", got)
	}

	prompt := mock.Calls()[0].UserMessage
	for _, want := range []string{"Tokens never expire.", "JWT tokens expire after 24 hours.", "===REFERENCE_"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if n := docs.appendCount(); n != 0 {
		t.Errorf("appends = %d, want 0: audit writes nothing", n)
	}
}

func TestMaintainer_Audit_NotFound(t *testing.T) {
	t.Parallel()

	docs := newFakeDocs(document.TypeAPI, "# Doc\n\nBody.")
	fx := newMaintainerFixture(t, testutil.NewMockLLM("[]"), docs)

	_, err := fx.m.Audit(context.Background(), uuid.New())
	if !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Audit() error = %v, want ErrNotFound", err)
	}
}

func TestMaintainer_Audit_CleanReport(t *testing.T) {
	t.Parallel()

	docs := newFakeDocs(document.TypeAPI, "# Doc\n\nBody.")
	fx := newMaintainerFixture(t, testutil.NewMockLLM("[]"), docs)

	report, err := fx.m.Audit(context.Background(), docs.doc.ID)
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("findings = %d, want 0", len(report.Findings))
	}
}

func TestMaintainer_Audit_RetrievalDegrades(t *testing.T) {
	t.Parallel()

	docs := newFakeDocs(document.TypeAPI, "# Doc\n\nBody.")
	mock := testutil.NewMockLLM("[]")
	fx := newMaintainerFixture(t, mock, docs)
	fx.retriever.err = errors.New("index offline")

	if _, err := fx.m.Audit(context.Background(), docs.doc.ID); err != nil {
		t.Fatalf("Audit() error = %v, want degraded success", err)
	}

	if prompt := mock.Calls()[0].UserMessage; !strings.Contains(prompt, "No reference excerpts available") {
		t.Error("prompt missing the no-references placeholder")
	}
}

func TestMaintainer_Audit_ModelFailure(t *testing.T) {
	t.Parallel()

	docs := newFakeDocs(document.TypeAPI, "# Doc\n\nBody.")
	mock := testutil.NewMockLLM("unused")
	mock.SetError(errors.New("invalid api key"))
	fx := newMaintainerFixture(t, mock, docs)

	_, err := fx.m.Audit(context.Background(), docs.doc.ID)
	if !errors.Is(err, ErrMaintenance) {
		t.Errorf("Audit() error = %v, want ErrMaintenance", err)
	}
}

func TestMaintainer_Audit_MalformedReply(t *testing.T) {
	t.Parallel()

	docs := newFakeDocs(document.TypeAPI, "# Doc\n\nBody.")
	fx := newMaintainerFixture(t, testutil.NewMockLLM("I could not find any problems."), docs)

	_, err := fx.m.Audit(context.Background(), docs.doc.ID)
	if !errors.Is(err, ErrMaintenance) {
		t.Errorf("Audit() error = %v, want ErrMaintenance", err)
	}
	if !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("Audit() error = %v, want ErrMalformedOutput in chain", err)
	}
}
