//go:build integration
// +build integration

package document

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/inkops/inkwell/internal/testutil"
)

var sharedDB *testutil.TestDBContainer

func TestMain(m *testing.M) {
	var cleanup func()
	var err error
	sharedDB, cleanup, err = testutil.SetupTestDBForMain()
	if err != nil {
		log.Fatalf("starting test database: %v", err)
	}
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupStore truncates all tables and returns a fresh Store.
func setupStore(t *testing.T) *Store {
	t.Helper()

	testutil.CleanTables(t, sharedDB.Pool)

	store, err := NewStore(sharedDB.Pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	return store
}

func mustCreate(t *testing.T, store *Store, params CreateParams) *Document {
	t.Helper()

	doc, err := store.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	return doc
}

func TestStoreCreate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc := mustCreate(t, store, CreateParams{
		Title:   "Billing API",
		Type:    TypeAPI,
		OwnerID: "team-payments",
		Content: "# Billing API\n\nEndpoints for invoicing.",
	})

	if doc.CurrentVersion != 1 {
		t.Errorf("CurrentVersion = %d, want 1", doc.CurrentVersion)
	}
	if doc.ID == uuid.Nil {
		t.Error("document id is nil")
	}

	got, version, err := store.GetCurrent(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetCurrent() unexpected error: %v", err)
	}
	if got.Title != doc.Title || got.Type != doc.Type || got.OwnerID != doc.OwnerID {
		t.Errorf("GetCurrent() document = %+v, want %+v", got, doc)
	}
	if version.Number != 1 {
		t.Errorf("version number = %d, want 1", version.Number)
	}
	if version.Content != "# Billing API\n\nEndpoints for invoicing." {
		t.Errorf("version content = %q", version.Content)
	}
	if version.CreatedBy != DefaultCreatedBy {
		t.Errorf("CreatedBy = %q, want %q", version.CreatedBy, DefaultCreatedBy)
	}
}

func TestStoreCreate_Invalid(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, CreateParams{Title: "x", Type: TypeAPI, Content: "body"})
	if !errors.Is(err, ErrInvalidTitle) {
		t.Errorf("Create(bad title) error = %v, want ErrInvalidTitle", err)
	}

	_, err = store.Create(ctx, CreateParams{Title: "Valid Title", Type: "memo", Content: "body"})
	if !errors.Is(err, ErrInvalidType) {
		t.Errorf("Create(bad type) error = %v, want ErrInvalidType", err)
	}
}

func TestUpdateMeta(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc := mustCreate(t, store, CreateParams{
		Title:   "Billing API",
		Type:    TypeAPI,
		Content: "# Billing API\n\nEndpoints for invoicing.",
	})

	updated, err := store.UpdateMeta(ctx, doc.ID, "Payments API", TypeReference)
	if err != nil {
		t.Fatalf("UpdateMeta() unexpected error: %v", err)
	}
	if updated.Title != "Payments API" || updated.Type != TypeReference {
		t.Errorf("updated = (%q, %q), want renamed reference", updated.Title, updated.Type)
	}
	if updated.CurrentVersion != 1 {
		t.Errorf("CurrentVersion = %d, want 1 (metadata change writes no version)", updated.CurrentVersion)
	}

	// An empty title leaves the current title alone.
	updated, err = store.UpdateMeta(ctx, doc.ID, "", TypeGuide)
	if err != nil {
		t.Fatalf("UpdateMeta(type only) unexpected error: %v", err)
	}
	if updated.Title != "Payments API" || updated.Type != TypeGuide {
		t.Errorf("updated = (%q, %q), want title kept", updated.Title, updated.Type)
	}

	if _, err := store.UpdateMeta(ctx, doc.ID, "xy", ""); !errors.Is(err, ErrInvalidTitle) {
		t.Errorf("UpdateMeta(short title) error = %v, want ErrInvalidTitle", err)
	}
	if _, err := store.UpdateMeta(ctx, doc.ID, "", "memo"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("UpdateMeta(bad type) error = %v, want ErrInvalidType", err)
	}
	if _, err := store.UpdateMeta(ctx, uuid.New(), "Payments API", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMeta(missing doc) error = %v, want ErrNotFound", err)
	}
}

func TestAppendVersion(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc := mustCreate(t, store, CreateParams{
		Title: "Search Guide", Type: TypeGuide, Content: "v1 body",
	})

	version, err := store.AppendVersion(ctx, AppendVersionParams{
		DocID:           doc.ID,
		ExpectedVersion: 1,
		Content:         "v2 body",
		SourceExcerpt:   "release notes said so",
		CreatedBy:       "reviewer",
	})
	if err != nil {
		t.Fatalf("AppendVersion() unexpected error: %v", err)
	}
	if version.Number != 2 {
		t.Errorf("version number = %d, want 2", version.Number)
	}

	head, current, err := store.GetCurrent(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetCurrent() unexpected error: %v", err)
	}
	if head.CurrentVersion != 2 {
		t.Errorf("CurrentVersion = %d, want 2", head.CurrentVersion)
	}
	if current.Content != "v2 body" {
		t.Errorf("current content = %q, want v2 body", current.Content)
	}
	if current.SourceExcerpt != "release notes said so" {
		t.Errorf("SourceExcerpt = %q", current.SourceExcerpt)
	}
	if current.CreatedBy != "reviewer" {
		t.Errorf("CreatedBy = %q, want reviewer", current.CreatedBy)
	}

	history, err := store.History(ctx, doc.ID)
	if err != nil {
		t.Fatalf("History() unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() returned %d versions, want 2", len(history))
	}
	if history[0].Number != 2 || history[1].Number != 1 {
		t.Errorf("history order = [%d, %d], want [2, 1]", history[0].Number, history[1].Number)
	}
	if history[1].Content != "v1 body" {
		t.Errorf("old version content = %q, want v1 body", history[1].Content)
	}
}

func TestAppendVersion_Conflict(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc := mustCreate(t, store, CreateParams{
		Title: "Conflicted Doc", Type: TypeOther, Content: "v1",
	})

	if _, err := store.AppendVersion(ctx, AppendVersionParams{
		DocID: doc.ID, ExpectedVersion: 1, Content: "first writer",
	}); err != nil {
		t.Fatalf("first AppendVersion() unexpected error: %v", err)
	}

	_, err := store.AppendVersion(ctx, AppendVersionParams{
		DocID: doc.ID, ExpectedVersion: 1, Content: "stale writer",
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale AppendVersion() error = %v, want ErrVersionConflict", err)
	}

	// The losing write must leave no trace.
	history, err := store.History(ctx, doc.ID)
	if err != nil {
		t.Fatalf("History() unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("History() returned %d versions, want 2", len(history))
	}
}

func TestAppendVersion_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.AppendVersion(context.Background(), AppendVersionParams{
		DocID: uuid.New(), ExpectedVersion: 1, Content: "body",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendVersion(missing doc) error = %v, want ErrNotFound", err)
	}
}

func TestAppendVersion_ConcurrentWriters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc := mustCreate(t, store, CreateParams{
		Title: "Contended Doc", Type: TypeGuide, Content: "v1",
	})

	const writers = 8
	var wins, conflicts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendVersion(ctx, AppendVersionParams{
				DocID: doc.ID, ExpectedVersion: 1, Content: "contender",
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrVersionConflict):
				conflicts.Add(1)
			default:
				t.Errorf("AppendVersion() unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("winners = %d, want exactly 1", wins.Load())
	}
	if conflicts.Load() != writers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts.Load(), writers-1)
	}

	head, err := store.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if head.CurrentVersion != 2 {
		t.Errorf("CurrentVersion = %d, want 2 after one winning write", head.CurrentVersion)
	}
}

func TestGetVersion(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc := mustCreate(t, store, CreateParams{
		Title: "Versioned Doc", Type: TypeReference, Content: "v1",
	})

	v, err := store.GetVersion(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("GetVersion() unexpected error: %v", err)
	}
	if v.Content != "v1" {
		t.Errorf("content = %q, want v1", v.Content)
	}

	if _, err := store.GetVersion(ctx, doc.ID, 99); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("GetVersion(missing version) error = %v, want ErrVersionNotFound", err)
	}
	if _, err := store.GetVersion(ctx, uuid.New(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVersion(missing doc) error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	mustCreate(t, store, CreateParams{Title: "Doc A", Type: TypeAPI, OwnerID: "alice", Content: "a"})
	mustCreate(t, store, CreateParams{Title: "Doc B", Type: TypeGuide, OwnerID: "alice", Content: "b"})
	mustCreate(t, store, CreateParams{Title: "Doc C", Type: TypeGuide, OwnerID: "bob", Content: "c"})

	all, err := store.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("List() unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d documents, want 3", len(all))
	}

	alice, err := store.List(ctx, ListParams{OwnerID: "alice"})
	if err != nil {
		t.Fatalf("List(owner) unexpected error: %v", err)
	}
	if len(alice) != 2 {
		t.Errorf("List(owner=alice) returned %d documents, want 2", len(alice))
	}

	guides, err := store.List(ctx, ListParams{Type: TypeGuide, OwnerID: "bob"})
	if err != nil {
		t.Fatalf("List(type+owner) unexpected error: %v", err)
	}
	if len(guides) != 1 || guides[0].Title != "Doc C" {
		t.Errorf("List(guide, bob) = %+v, want only Doc C", guides)
	}

	if _, err := store.List(ctx, ListParams{Type: "memo"}); !errors.Is(err, ErrInvalidType) {
		t.Errorf("List(bad type) error = %v, want ErrInvalidType", err)
	}
}

func TestCurrentVersions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := mustCreate(t, store, CreateParams{Title: "Doc A", Type: TypeAPI, Content: "a"})
	b := mustCreate(t, store, CreateParams{Title: "Doc B", Type: TypeGuide, Content: "b"})

	if _, err := store.AppendVersion(ctx, AppendVersionParams{
		DocID: b.ID, ExpectedVersion: 1, Content: "b2",
	}); err != nil {
		t.Fatalf("AppendVersion() unexpected error: %v", err)
	}

	versions, err := store.CurrentVersions(ctx)
	if err != nil {
		t.Fatalf("CurrentVersions() unexpected error: %v", err)
	}
	if versions[a.ID] != 1 || versions[b.ID] != 2 {
		t.Errorf("CurrentVersions() = %v, want {%s:1 %s:2}", versions, a.ID, b.ID)
	}
}

func TestDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc := mustCreate(t, store, CreateParams{
		Title: "Doomed Doc", Type: TypeOther, Content: "body",
	})

	if err := store.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	if _, err := store.History(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("History(deleted) error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(twice) error = %v, want ErrNotFound", err)
	}
}
