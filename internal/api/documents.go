package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/agent"
	"github.com/inkops/inkwell/internal/document"
)

// maxRequestBody bounds request bodies. Content tops out at
// document.MaxContentLength, so 1 MiB leaves generous JSON overhead.
const maxRequestBody = 1 << 20

// documentHandler serves the document lifecycle endpoints.
type documentHandler struct {
	generator  Generator
	maintainer Maintainer
	docs       DocumentStore
	sync       Syncer
	logger     *slog.Logger
}

// decodeJSON reads a bounded JSON request body into dst. A false return
// means the error response was already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
			return false
		}
		WriteError(w, http.StatusBadRequest, "invalid_json", "malformed JSON body", logger)
		return false
	}
	return true
}

// pathDocID parses the {id} path segment. A nil UUID return means the
// error response was already written.
func pathDocID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "document id must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

type documentResponse struct {
	DocID     uuid.UUID `json:"doc_id"`
	Title     string    `json:"title"`
	DocType   string    `json:"doc_type"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDocumentResponse(doc *document.Document) documentResponse {
	return documentResponse{
		DocID:     doc.ID,
		Title:     doc.Title,
		DocType:   string(doc.Type),
		OwnerID:   doc.OwnerID,
		Version:   doc.CurrentVersion,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

type generateRequest struct {
	Title      string `json:"title"`
	DocType    string `json:"doc_type"`
	SourceText string `json:"source_text"`
	OwnerID    string `json:"owner_id"`
}

type generateResponse struct {
	documentResponse
	Content string `json:"content"`
	Model   string `json:"model"`
	Synced  bool   `json:"synced"`
}

// generate runs the generation agent and persists the result as
// version 1. Index sync failure does not fail the request; the
// document is durable and the response carries synced=false.
func (h *documentHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	docType, err := document.ParseType(req.DocType)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	result, err := h.generator.Generate(r.Context(), agent.GenerateRequest{
		Title:      req.Title,
		DocType:    docType,
		SourceText: req.SourceText,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	doc, err := h.docs.Create(r.Context(), document.CreateParams{
		Title:         result.Title,
		Type:          result.DocType,
		OwnerID:       req.OwnerID,
		Content:       result.Content,
		SourceExcerpt: req.SourceText,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	synced := true
	if err := h.sync.Sync(r.Context(), doc.ID, 0, doc.CurrentVersion, result.Content); err != nil {
		synced = false
		h.logger.Warn("index sync failed after generate, reconciliation will repair",
			"doc_id", doc.ID,
			"error", err,
		)
	}

	WriteJSON(w, http.StatusCreated, generateResponse{
		documentResponse: toDocumentResponse(doc),
		Content:          result.Content,
		Model:            result.Model,
		Synced:           synced,
	}, h.logger)
}

type createRequest struct {
	Title   string `json:"title"`
	DocType string `json:"doc_type"`
	Content string `json:"content"`
	OwnerID string `json:"owner_id"`
}

type createResponse struct {
	documentResponse
	Synced bool `json:"synced"`
}

// create stores caller-provided content as version 1, bypassing the
// generation agent.
func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	docType, err := document.ParseType(req.DocType)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	doc, err := h.docs.Create(r.Context(), document.CreateParams{
		Title:   req.Title,
		Type:    docType,
		OwnerID: req.OwnerID,
		Content: req.Content,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	synced := true
	if err := h.sync.Sync(r.Context(), doc.ID, 0, doc.CurrentVersion, req.Content); err != nil {
		synced = false
		h.logger.Warn("index sync failed after create, reconciliation will repair",
			"doc_id", doc.ID,
			"error", err,
		)
	}

	WriteJSON(w, http.StatusCreated, createResponse{
		documentResponse: toDocumentResponse(doc),
		Synced:           synced,
	}, h.logger)
}

func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	params := document.ListParams{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   parseIntParam(r, "limit", 0),
		Offset:  parseIntParam(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("doc_type"); raw != "" {
		docType, err := document.ParseType(raw)
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
		params.Type = docType
	}

	docs, err := h.docs.List(r.Context(), params)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	items := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDocumentResponse(doc))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"documents": items}, h.logger)
}

type documentDetailResponse struct {
	documentResponse
	Content   string `json:"content"`
	CreatedBy string `json:"created_by"`
}

func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}

	doc, version, err := h.docs.GetCurrent(r.Context(), docID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, documentDetailResponse{
		documentResponse: toDocumentResponse(doc),
		Content:          version.Content,
		CreatedBy:        version.CreatedBy,
	}, h.logger)
}

type editRequest struct {
	Title    string `json:"title"`
	DocType  string `json:"doc_type"`
	Content  string `json:"content"`
	EditedBy string `json:"edited_by"`
}

type editResponse struct {
	documentResponse
	Changed bool `json:"changed"`
	Synced  bool `json:"synced"`
}

// edit applies a caller-supplied revision without the maintenance
// agent. New content appends a version through the same
// compare-and-increment the agent uses; title and type changes touch
// only the head and create no version. Content identical to the
// current version is a successful no-op.
func (h *documentHandler) edit(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}

	var req editRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.Title == "" && req.DocType == "" && req.Content == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request",
			"at least one of title, content, or doc_type is required", h.logger)
		return
	}

	var docType document.Type
	if req.DocType != "" {
		parsed, err := document.ParseType(req.DocType)
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
		docType = parsed
	}

	doc, current, err := h.docs.GetCurrent(r.Context(), docID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	changed := false
	synced := true
	if req.Content != "" && req.Content != current.Content {
		version, err := h.docs.AppendVersion(r.Context(), document.AppendVersionParams{
			DocID:           docID,
			ExpectedVersion: doc.CurrentVersion,
			Content:         req.Content,
			CreatedBy:       req.EditedBy,
		})
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
		changed = true
		doc.CurrentVersion = version.Number

		if err := h.sync.Sync(r.Context(), docID, version.Number-1, version.Number, req.Content); err != nil {
			synced = false
			h.logger.Warn("index sync failed after edit, reconciliation will repair",
				"doc_id", docID,
				"error", err,
			)
		}
	}

	if req.Title != "" || docType != "" {
		doc, err = h.docs.UpdateMeta(r.Context(), docID, req.Title, docType)
		if err != nil {
			writeDomainError(w, err, h.logger)
			return
		}
	}

	WriteJSON(w, http.StatusOK, editResponse{
		documentResponse: toDocumentResponse(doc),
		Changed:          changed,
		Synced:           synced,
	}, h.logger)
}

// delete removes the document, its versions, and its index chunks.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.docs.Delete(r.Context(), docID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	h.logger.Info("document deleted", "doc_id", docID)
	w.WriteHeader(http.StatusNoContent)
}

type updateRequest struct {
	Instruction  string `json:"instruction"`
	UseRetrieval bool   `json:"use_retrieval"`
	RequestedBy  string `json:"requested_by"`
}

type updateResponse struct {
	DocID   uuid.UUID `json:"doc_id"`
	Version int       `json:"version"`
	Content string    `json:"content"`
	Changed bool      `json:"changed"`
	Synced  bool      `json:"synced"`
}

// update runs the maintenance agent against the current version.
func (h *documentHandler) update(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}

	var req updateRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.maintainer.Update(r.Context(), agent.UpdateRequest{
		DocID:        docID,
		Instruction:  req.Instruction,
		UseRetrieval: req.UseRetrieval,
		RequestedBy:  req.RequestedBy,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, updateResponse{
		DocID:   result.DocID,
		Version: result.Version,
		Content: result.Content,
		Changed: result.Changed,
		Synced:  result.Synced,
	}, h.logger)
}

type historyItem struct {
	Version   int       `json:"version"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
	HasSource bool      `json:"has_source"`
}

// history lists the version lineage, newest first. Content stays out of
// the listing; individual versions are fetched by number.
func (h *documentHandler) history(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}

	versions, err := h.docs.History(r.Context(), docID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	items := make([]historyItem, 0, len(versions))
	for _, v := range versions {
		items = append(items, historyItem{
			Version:   v.Number,
			CreatedBy: v.CreatedBy,
			CreatedAt: v.CreatedAt,
			Size:      len(v.Content),
			HasSource: v.SourceExcerpt != "",
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"doc_id":   docID,
		"versions": items,
	}, h.logger)
}

type versionResponse struct {
	DocID         uuid.UUID `json:"doc_id"`
	Version       int       `json:"version"`
	Content       string    `json:"content"`
	SourceExcerpt string    `json:"source_excerpt,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *documentHandler) getVersion(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}
	number, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || number < 1 {
		WriteError(w, http.StatusBadRequest, "invalid_request", "version must be a positive integer", h.logger)
		return
	}

	version, err := h.docs.GetVersion(r.Context(), docID, number)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, versionResponse{
		DocID:         version.DocID,
		Version:       version.Number,
		Content:       version.Content,
		SourceExcerpt: version.SourceExcerpt,
		CreatedBy:     version.CreatedBy,
		CreatedAt:     version.CreatedAt,
	}, h.logger)
}

type auditFinding struct {
	Severity   string `json:"severity"`
	Summary    string `json:"summary"`
	Suggestion string `json:"suggestion,omitempty"`
}

type auditResponse struct {
	DocID    uuid.UUID      `json:"doc_id"`
	Version  int            `json:"version"`
	Model    string         `json:"model"`
	Findings []auditFinding `json:"findings"`
}

// audit asks the maintenance agent for a consistency report. Read-only:
// no version is written.
func (h *documentHandler) audit(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}

	report, err := h.maintainer.Audit(r.Context(), docID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	findings := make([]auditFinding, 0, len(report.Findings))
	for _, f := range report.Findings {
		findings = append(findings, auditFinding{
			Severity:   f.Severity,
			Summary:    f.Summary,
			Suggestion: f.Suggestion,
		})
	}
	WriteJSON(w, http.StatusOK, auditResponse{
		DocID:    report.DocID,
		Version:  report.Version,
		Model:    report.Model,
		Findings: findings,
	}, h.logger)
}

type reconcileResponse struct {
	DocID   uuid.UUID `json:"doc_id"`
	Version int       `json:"version"`
	Action  string    `json:"action"`
}

// reconcile repairs the index for one document. Idempotent; safe to
// call when nothing is wrong.
func (h *documentHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	docID, ok := pathDocID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.sync.Reconcile(r.Context(), docID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, reconcileResponse{
		DocID:   result.DocID,
		Version: result.Version,
		Action:  result.Action,
	}, h.logger)
}
