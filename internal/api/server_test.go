package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/agent"
	"github.com/inkops/inkwell/internal/docsync"
	"github.com/inkops/inkwell/internal/document"
	"github.com/inkops/inkwell/internal/testutil"
	"github.com/inkops/inkwell/internal/vector"
)

// fakeGenerator returns a canned result or error.
type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, req agent.GenerateRequest) (*agent.GenerateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &agent.GenerateResult{
		Title:   req.Title,
		DocType: req.DocType,
		Content: "# " + req.Title + "\n\nGenerated body.",
		Model:   "mock/test-model",
	}, nil
}

// fakeMaintainer returns canned update and audit outcomes.
type fakeMaintainer struct {
	updateRes *agent.UpdateResult
	updateErr error
	auditRep  *agent.AuditReport
	auditErr  error
}

func (f *fakeMaintainer) Update(_ context.Context, req agent.UpdateRequest) (*agent.UpdateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	res := *f.updateRes
	res.DocID = req.DocID
	return &res, nil
}

func (f *fakeMaintainer) Audit(_ context.Context, docID uuid.UUID) (*agent.AuditReport, error) {
	if f.auditErr != nil {
		return nil, f.auditErr
	}
	rep := *f.auditRep
	rep.DocID = docID
	return &rep, nil
}

// fakeStore is an in-memory DocumentStore for handler tests.
type fakeStore struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*document.Document
	versions  map[uuid.UUID][]*document.Version
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[uuid.UUID]*document.Document),
		versions: make(map[uuid.UUID][]*document.Version),
	}
}

func (f *fakeStore) Create(_ context.Context, params document.CreateParams) (*document.Document, error) {
	if err := document.ValidateTitle(params.Title); err != nil {
		return nil, err
	}
	if err := document.ValidateContent(params.Content); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	doc := &document.Document{
		ID:             uuid.New(),
		Title:          params.Title,
		Type:           params.Type,
		OwnerID:        params.OwnerID,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.docs[doc.ID] = doc
	f.versions[doc.ID] = []*document.Version{{
		DocID:         doc.ID,
		Number:        1,
		Content:       params.Content,
		SourceExcerpt: params.SourceExcerpt,
		CreatedBy:     document.DefaultCreatedBy,
		CreatedAt:     now,
	}}
	return doc, nil
}

func (f *fakeStore) AppendVersion(_ context.Context, params document.AppendVersionParams) (*document.Version, error) {
	if err := document.ValidateContent(params.Content); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	doc, ok := f.docs[params.DocID]
	if !ok {
		return nil, document.ErrNotFound
	}
	if params.ExpectedVersion != doc.CurrentVersion {
		return nil, fmt.Errorf("%w: expected %d, current %d",
			document.ErrVersionConflict, params.ExpectedVersion, doc.CurrentVersion)
	}

	createdBy := params.CreatedBy
	if createdBy == "" {
		createdBy = document.DefaultCreatedBy
	}
	v := &document.Version{
		DocID:         params.DocID,
		Number:        doc.CurrentVersion + 1,
		Content:       params.Content,
		SourceExcerpt: params.SourceExcerpt,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now(),
	}
	f.versions[params.DocID] = append(f.versions[params.DocID], v)
	doc.CurrentVersion = v.Number
	doc.UpdatedAt = v.CreatedAt
	return v, nil
}

func (f *fakeStore) UpdateMeta(_ context.Context, docID uuid.UUID, title string, docType document.Type) (*document.Document, error) {
	if title != "" {
		if err := document.ValidateTitle(title); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok {
		return nil, document.ErrNotFound
	}
	if title != "" {
		doc.Title = title
	}
	if docType != "" {
		doc.Type = docType
	}
	doc.UpdatedAt = time.Now()
	return doc, nil
}

func (f *fakeStore) Get(_ context.Context, docID uuid.UUID) (*document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok {
		return nil, document.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) GetCurrent(_ context.Context, docID uuid.UUID) (*document.Document, *document.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok {
		return nil, nil, document.ErrNotFound
	}
	versions := f.versions[docID]
	return doc, versions[len(versions)-1], nil
}

func (f *fakeStore) GetVersion(_ context.Context, docID uuid.UUID, number int) (*document.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[docID]; !ok {
		return nil, document.ErrNotFound
	}
	for _, v := range f.versions[docID] {
		if v.Number == number {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: version %d", document.ErrVersionNotFound, number)
}

func (f *fakeStore) History(_ context.Context, docID uuid.UUID) ([]*document.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[docID]; !ok {
		return nil, document.ErrNotFound
	}
	versions := f.versions[docID]
	out := make([]*document.Version, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		out = append(out, versions[i])
	}
	return out, nil
}

func (f *fakeStore) List(_ context.Context, params document.ListParams) ([]*document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*document.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		if params.OwnerID != "" && doc.OwnerID != params.OwnerID {
			continue
		}
		if params.Type != "" && doc.Type != params.Type {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, docID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[docID]; !ok {
		return document.ErrNotFound
	}
	delete(f.docs, docID)
	delete(f.versions, docID)
	return nil
}

// fakeSearcher returns canned results.
type fakeSearcher struct {
	results []vector.Result
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ ...vector.QueryOption) ([]vector.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, vector.ErrEmptyQuery
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// fakeCoordinator records sync calls and answers reconciles.
type fakeCoordinator struct {
	mu        sync.Mutex
	syncErr   error
	syncCalls int
	recRes    docsync.ReconcileResult
	recErr    error
}

func (f *fakeCoordinator) Sync(_ context.Context, _ uuid.UUID, _, _ int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return f.syncErr
}

func (f *fakeCoordinator) Reconcile(_ context.Context, docID uuid.UUID) (docsync.ReconcileResult, error) {
	if f.recErr != nil {
		return docsync.ReconcileResult{}, f.recErr
	}
	res := f.recRes
	res.DocID = docID
	return res, nil
}

// serverFixture bundles a handler with its fakes.
type serverFixture struct {
	handler    http.Handler
	generator  *fakeGenerator
	maintainer *fakeMaintainer
	store      *fakeStore
	searcher   *fakeSearcher
	sync       *fakeCoordinator
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	fx := &serverFixture{
		generator: &fakeGenerator{},
		maintainer: &fakeMaintainer{
			updateRes: &agent.UpdateResult{Version: 2, Content: "# Doc\n\nRevised.", Changed: true, Synced: true},
			auditRep:  &agent.AuditReport{Version: 1, Model: "mock/test-model"},
		},
		store:    newFakeStore(),
		searcher: &fakeSearcher{},
		sync:     &fakeCoordinator{recRes: docsync.ReconcileResult{Version: 1, Action: docsync.ActionNone}},
	}

	srv, err := NewServer(ServerConfig{
		Logger:     testutil.DiscardLogger(),
		Generator:  fx.generator,
		Maintainer: fx.maintainer,
		Docs:       fx.store,
		Searcher:   fx.searcher,
		Sync:       fx.sync,
		RateBurst:  1000,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	fx.handler = srv.Handler()
	return fx
}

func (fx *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:52100"
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeBody[errorEnvelope](t, rec)
	return env.Error.Code
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer(empty) error = nil, want error")
	}
}

func TestServer_Generate(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/documents/generate", map[string]any{
		"title":       "Login API",
		"doc_type":    "api",
		"source_text": "POST /login returns a JWT on success.",
		"owner_id":    "team-auth",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[generateResponse](t, rec)
	if resp.Title != "Login API" || resp.DocType != "api" || resp.Version != 1 {
		t.Errorf("response = %+v, want title/type/version echoed", resp)
	}
	if !strings.HasPrefix(resp.Content, "# Login API") {
		t.Errorf("Content = %q, want generated content", resp.Content)
	}
	if !resp.Synced {
		t.Error("Synced = false, want true")
	}
	if fx.sync.syncCalls != 1 {
		t.Errorf("sync calls = %d, want 1", fx.sync.syncCalls)
	}

	if _, err := fx.store.Get(context.Background(), resp.DocID); err != nil {
		t.Errorf("document not persisted: %v", err)
	}
}

func TestServer_Generate_SyncFailureStillCreates(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	fx.sync.syncErr = errors.New("embedding provider offline")

	rec := fx.do(t, http.MethodPost, "/api/v1/documents/generate", map[string]any{
		"title":       "Login API",
		"doc_type":    "api",
		"source_text": "POST /login returns a JWT.",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 despite sync failure: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[generateResponse](t, rec)
	if resp.Synced {
		t.Error("Synced = true, want false")
	}
	if _, err := fx.store.Get(context.Background(), resp.DocID); err != nil {
		t.Errorf("document not persisted: %v", err)
	}
}

func TestServer_Generate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       map[string]any
		setup      func(*serverFixture)
		wantStatus int
		wantCode   string
	}{
		{
			"unknown doc type",
			map[string]any{"title": "X", "doc_type": "novel", "source_text": "text"},
			nil,
			http.StatusBadRequest, "invalid_request",
		},
		{
			"empty source",
			map[string]any{"title": "X", "doc_type": "api", "source_text": "  "},
			nil,
			http.StatusBadRequest, "invalid_request",
		},
		{
			"model failure",
			map[string]any{"title": "X", "doc_type": "api", "source_text": "text"},
			func(fx *serverFixture) {
				fx.generator.err = fmt.Errorf("%w: model offline", agent.ErrGeneration)
			},
			http.StatusBadGateway, "generation_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newServerFixture(t)
			if tt.setup != nil {
				tt.setup(fx)
			}
			rec := fx.do(t, http.MethodPost, "/api/v1/documents/generate", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
			if fx.sync.syncCalls != 0 {
				t.Errorf("sync calls = %d, want 0", fx.sync.syncCalls)
			}
		})
	}
}

func TestServer_Generate_MalformedJSON(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/generate", strings.NewReader("{not json"))
	req.RemoteAddr = "203.0.113.7:52100"
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "invalid_json" {
		t.Errorf("error code = %q, want invalid_json", code)
	}
}

func TestServer_Create(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/documents", map[string]any{
		"title":    "Runbook",
		"doc_type": "other",
		"content":  "Restart the service with systemctl.",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[createResponse](t, rec)
	if resp.Version != 1 || !resp.Synced {
		t.Errorf("response = %+v, want version 1 synced", resp)
	}
}

func TestServer_GetDocument(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	doc, err := fx.store.Create(context.Background(), document.CreateParams{
		Title: "Guide", Type: document.TypeGuide, Content: "# Guide\n\nStep one.",
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	rec := fx.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[documentDetailResponse](t, rec)
	if resp.DocID != doc.ID || resp.Content != "# Guide\n\nStep one." {
		t.Errorf("response = %+v, want stored document", resp)
	}
}

func TestServer_GetDocument_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"bad uuid", "/api/v1/documents/not-a-uuid", http.StatusBadRequest, "invalid_request"},
		{"missing", "/api/v1/documents/" + uuid.NewString(), http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newServerFixture(t)
			rec := fx.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestServer_List(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	for _, title := range []string{"One", "Two"} {
		if _, err := fx.store.Create(context.Background(), document.CreateParams{
			Title: title, Type: document.TypeOther, Content: "body",
		}); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}

	rec := fx.do(t, http.MethodGet, "/api/v1/documents?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeBody[map[string][]documentResponse](t, rec)
	if len(resp["documents"]) != 2 {
		t.Errorf("documents = %d, want 2", len(resp["documents"]))
	}
}

func TestServer_Update(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	docID := uuid.New()
	rec := fx.do(t, http.MethodPost, "/api/v1/documents/"+docID.String()+"/update", map[string]any{
		"instruction": "add a note",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[updateResponse](t, rec)
	if resp.DocID != docID || resp.Version != 2 || !resp.Changed {
		t.Errorf("response = %+v, want updated version 2", resp)
	}
}

func TestServer_Update_Errors(t *testing.T) {
	t.Parallel()

	docID := uuid.NewString()
	tests := []struct {
		name       string
		body       map[string]any
		setup      func(*serverFixture)
		wantStatus int
		wantCode   string
	}{
		{
			"empty instruction",
			map[string]any{"instruction": "  "},
			nil,
			http.StatusBadRequest, "invalid_request",
		},
		{
			"not found",
			map[string]any{"instruction": "add a note"},
			func(fx *serverFixture) { fx.maintainer.updateErr = document.ErrNotFound },
			http.StatusNotFound, "not_found",
		},
		{
			"exhausted version races",
			map[string]any{"instruction": "add a note"},
			func(fx *serverFixture) {
				fx.maintainer.updateErr = fmt.Errorf("update lost 4 version races: %w", document.ErrVersionConflict)
			},
			http.StatusConflict, "version_conflict",
		},
		{
			"model failure",
			map[string]any{"instruction": "add a note"},
			func(fx *serverFixture) {
				fx.maintainer.updateErr = fmt.Errorf("%w: model offline", agent.ErrMaintenance)
			},
			http.StatusBadGateway, "maintenance_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newServerFixture(t)
			if tt.setup != nil {
				tt.setup(fx)
			}
			rec := fx.do(t, http.MethodPost, "/api/v1/documents/"+docID+"/update", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestServer_Edit_AppendsVersion(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	doc, err := fx.store.Create(context.Background(), document.CreateParams{
		Title: "Runbook", Type: document.TypeOther, Content: "Restart with systemctl.",
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	rec := fx.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String(), map[string]any{
		"content":   "Restart with systemctl restart inkwell.",
		"edited_by": "oncall",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[editResponse](t, rec)
	if resp.Version != 2 || !resp.Changed || !resp.Synced {
		t.Errorf("response = %+v, want changed version 2 synced", resp)
	}
	if fx.sync.syncCalls != 1 {
		t.Errorf("sync calls = %d, want 1", fx.sync.syncCalls)
	}

	versions, err := fx.store.History(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(versions) != 2 || versions[0].CreatedBy != "oncall" {
		t.Errorf("history = %d versions by %q, want 2 with editor recorded",
			len(versions), versions[0].CreatedBy)
	}
}

func TestServer_Edit_MetadataOnly(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	doc, err := fx.store.Create(context.Background(), document.CreateParams{
		Title: "Runbook", Type: document.TypeOther, Content: "Restart with systemctl.",
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	rec := fx.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String(), map[string]any{
		"title":    "Service Runbook",
		"doc_type": "guide",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[editResponse](t, rec)
	if resp.Version != 1 || resp.Changed {
		t.Errorf("response = %+v, want version 1 unchanged", resp)
	}
	if resp.Title != "Service Runbook" || resp.DocType != "guide" {
		t.Errorf("response = %+v, want renamed guide", resp)
	}
	if fx.sync.syncCalls != 0 {
		t.Errorf("sync calls = %d, want 0 for metadata-only edit", fx.sync.syncCalls)
	}
}

func TestServer_Edit_UnchangedContentIsNoOp(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	doc, err := fx.store.Create(context.Background(), document.CreateParams{
		Title: "Runbook", Type: document.TypeOther, Content: "Restart with systemctl.",
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	rec := fx.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String(), map[string]any{
		"content": "Restart with systemctl.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[editResponse](t, rec)
	if resp.Version != 1 || resp.Changed {
		t.Errorf("response = %+v, want version 1 unchanged", resp)
	}
	if fx.sync.syncCalls != 0 {
		t.Errorf("sync calls = %d, want 0 for identical content", fx.sync.syncCalls)
	}
}

func TestServer_Edit_SyncFailureStillAppends(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	fx.sync.syncErr = errors.New("embedding provider offline")
	doc, err := fx.store.Create(context.Background(), document.CreateParams{
		Title: "Runbook", Type: document.TypeOther, Content: "Restart with systemctl.",
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	rec := fx.do(t, http.MethodPut, "/api/v1/documents/"+doc.ID.String(), map[string]any{
		"content": "Restart with systemctl restart inkwell.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite sync failure: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[editResponse](t, rec)
	if resp.Version != 2 || resp.Synced {
		t.Errorf("response = %+v, want version 2 with synced=false", resp)
	}
}

func TestServer_Edit_Errors(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, fx *serverFixture) uuid.UUID {
		t.Helper()
		doc, err := fx.store.Create(context.Background(), document.CreateParams{
			Title: "Runbook", Type: document.TypeOther, Content: "old body",
		})
		if err != nil {
			t.Fatalf("seeding store: %v", err)
		}
		return doc.ID
	}

	tests := []struct {
		name       string
		body       map[string]any
		setup      func(t *testing.T, fx *serverFixture) uuid.UUID
		wantStatus int
		wantCode   string
	}{
		{
			"no fields",
			map[string]any{},
			seed,
			http.StatusBadRequest, "invalid_request",
		},
		{
			"unknown doc type",
			map[string]any{"doc_type": "novel"},
			seed,
			http.StatusBadRequest, "invalid_request",
		},
		{
			"missing document",
			map[string]any{"content": "new body"},
			func(t *testing.T, fx *serverFixture) uuid.UUID { return uuid.New() },
			http.StatusNotFound, "not_found",
		},
		{
			"version race",
			map[string]any{"content": "new body"},
			func(t *testing.T, fx *serverFixture) uuid.UUID {
				docID := seed(t, fx)
				fx.store.appendErr = fmt.Errorf("%w: expected 1, current 2", document.ErrVersionConflict)
				return docID
			},
			http.StatusConflict, "version_conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newServerFixture(t)
			docID := tt.setup(t, fx)

			rec := fx.do(t, http.MethodPut, "/api/v1/documents/"+docID.String(), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestServer_HistoryAndVersion(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	doc, err := fx.store.Create(context.Background(), document.CreateParams{
		Title: "Guide", Type: document.TypeGuide, Content: "# Guide\n\nStep one.",
		SourceExcerpt: "original notes",
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	rec := fx.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}
	var hist struct {
		Versions []historyItem `json:"versions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(hist.Versions) != 1 || hist.Versions[0].Version != 1 || !hist.Versions[0].HasSource {
		t.Errorf("history = %+v, want one version with source", hist.Versions)
	}

	rec = fx.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/versions/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("version status = %d, want 200", rec.Code)
	}
	ver := decodeBody[versionResponse](t, rec)
	if ver.Version != 1 || ver.SourceExcerpt != "original notes" {
		t.Errorf("version = %+v, want full version 1", ver)
	}

	rec = fx.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/versions/9", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing version status = %d, want 404", rec.Code)
	}

	rec = fx.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/versions/zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad version status = %d, want 400", rec.Code)
	}
}

func TestServer_Delete(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	doc, err := fx.store.Create(context.Background(), document.CreateParams{
		Title: "Gone", Type: document.TypeOther, Content: "body",
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	rec := fx.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, err := fx.store.Get(context.Background(), doc.ID); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	rec = fx.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestServer_Audit(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	fx.maintainer.auditRep.Findings = []agent.Finding{
		{Severity: "warn", Summary: "endpoint list is stale", Suggestion: "re-run generation"},
	}

	docID := uuid.New()
	rec := fx.do(t, http.MethodPost, "/api/v1/documents/"+docID.String()+"/audit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[auditResponse](t, rec)
	if resp.DocID != docID || len(resp.Findings) != 1 || resp.Findings[0].Severity != "warn" {
		t.Errorf("response = %+v, want one warn finding", resp)
	}
}

func TestServer_Reconcile(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	fx.sync.recRes = docsync.ReconcileResult{Version: 3, Action: docsync.ActionResync}

	docID := uuid.New()
	rec := fx.do(t, http.MethodPost, "/api/v1/documents/"+docID.String()+"/reconcile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[reconcileResponse](t, rec)
	if resp.DocID != docID || resp.Action != docsync.ActionResync || resp.Version != 3 {
		t.Errorf("response = %+v, want resync at version 3", resp)
	}

	fx.sync.recErr = document.ErrNotFound
	rec = fx.do(t, http.MethodPost, "/api/v1/documents/"+uuid.NewString()+"/reconcile", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing doc status = %d, want 404", rec.Code)
	}
}

func TestServer_Search(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	fx.searcher.results = []vector.Result{
		{ChunkID: "abc", DocID: uuid.New(), Version: 1, Content: "JWT tokens expire.", Similarity: 0.91},
	}

	rec := fx.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "token expiry"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[searchResponse](t, rec)
	if resp.Query != "token expiry" || len(resp.Results) != 1 {
		t.Errorf("response = %+v, want one result", resp)
	}
	if !strings.Contains(rec.Body.String(), `"text":"JWT tokens expire."`) {
		t.Errorf("body = %s, want chunk text under the \"text\" key", rec.Body.String())
	}
}

func TestServer_Search_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       map[string]any
		setup      func(*serverFixture)
		wantStatus int
		wantCode   string
	}{
		{
			"empty query",
			map[string]any{"query": "   "},
			nil,
			http.StatusBadRequest, "invalid_request",
		},
		{
			"bad doc id",
			map[string]any{"query": "x", "doc_id": "nope"},
			nil,
			http.StatusBadRequest, "invalid_request",
		},
		{
			"index offline",
			map[string]any{"query": "x"},
			func(fx *serverFixture) { fx.searcher.err = errors.New("connection refused") },
			http.StatusBadGateway, "retrieval_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newServerFixture(t)
			if tt.setup != nil {
				tt.setup(fx)
			}
			rec := fx.do(t, http.MethodPost, "/api/v1/search", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestServer_Search_NoResultsIsEmptyArray(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "nothing here"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("body = %s, want empty results array, not null", rec.Body.String())
	}
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	for _, path := range []string{"/health", "/ready"} {
		rec := fx.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	rec := fx.do(t, http.MethodPut, "/api/v1/documents", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
