package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inkops/inkwell/internal/document"
)

// GenerateRequest describes a document to produce from source material.
type GenerateRequest struct {
	Title      string
	DocType    document.Type
	SourceText string
}

// Validate checks the request bounds before any model call.
func (r GenerateRequest) Validate() error {
	if err := document.ValidateTitle(r.Title); err != nil {
		return err
	}
	if !r.DocType.Valid() {
		return fmt.Errorf("%w: %q", document.ErrInvalidType, r.DocType)
	}
	if strings.TrimSpace(r.SourceText) == "" {
		return ErrEmptySource
	}
	if len(r.SourceText) > document.MaxContentLength {
		return fmt.Errorf("%w: source text is %d bytes (max %d)",
			document.ErrContentTooLong, len(r.SourceText), document.MaxContentLength)
	}
	return nil
}

// GenerateResult carries generated content plus the request echoed
// back for persistence by the caller.
type GenerateResult struct {
	Title   string
	DocType document.Type
	Content string
	Model   string
}

// Generator produces first-version document content from source
// material. It holds no store references; persisting the result as
// version 1 is the caller's step.
type Generator struct {
	llm    *LLM
	logger *slog.Logger
}

// NewGenerator creates the generation agent.
func NewGenerator(llm *LLM, logger *slog.Logger) (*Generator, error) {
	if llm == nil {
		return nil, errors.New("llm is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Generator{llm: llm, logger: logger}, nil
}

// Generate builds the doc_type-conditioned prompt, invokes the model
// once under the retry policy, and validates the output.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	prompt := fmt.Sprintf(generationPrompt,
		sanitizeDelimiters(req.Title),
		typeGuidance(req.DocType),
		nonce, sanitizeDelimiters(req.SourceText), nonce,
	)

	content, err := g.llm.Generate(ctx, generationSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	content = stripWrappingFence(content)
	if err := validateOutput(content, req.DocType); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	g.logger.Debug("document generated",
		"title", req.Title,
		"doc_type", req.DocType,
		"content_length", len(content),
	)

	return &GenerateResult{
		Title:   req.Title,
		DocType: req.DocType,
		Content: content,
		Model:   g.llm.ModelName(),
	}, nil
}

// validateOutput enforces the output contract shared by generation and
// maintenance: non-empty, bounded, and opening with a markdown heading
// for the structured document kinds.
func validateOutput(content string, docType document.Type) error {
	if content == "" {
		return ErrEmptyOutput
	}
	if len(content) > document.MaxContentLength {
		return fmt.Errorf("%w: %d bytes (max %d)",
			ErrOutputTooLarge, len(content), document.MaxContentLength)
	}
	if structuredType(docType) && !hasMarkdownHeading(content) {
		return fmt.Errorf("%w: no markdown heading", ErrMalformedOutput)
	}
	return nil
}

// structuredType reports whether the kind requires heading structure.
func structuredType(t document.Type) bool {
	switch t {
	case document.TypeAPI, document.TypeGuide, document.TypeReference:
		return true
	}
	return false
}

func hasMarkdownHeading(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			return true
		}
	}
	return false
}

// stripWrappingFence unwraps output the model wrapped whole in a
// markdown code fence. It only acts when the reply both opens and
// closes with a fence, so a document that merely starts with a code
// block is left alone.
func stripWrappingFence(content string) string {
	if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		return stripCodeFences(content)
	}
	return content
}
