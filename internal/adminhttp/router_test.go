package adminhttp

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/governor"
	"github.com/daniel-olson-code/buelon/internal/logger"
	"github.com/daniel-olson-code/buelon/internal/metadata"
)

func newTestRouter(t *testing.T) (*gin.Engine, blob.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(&metadata.Step{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	repo := metadata.NewRepo(db)
	gov := governor.New(map[string]int{"default": 3})
	store := blob.NewMemoryStore()

	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	return NewRouter(Dependencies{Repo: repo, Store: store, Queue: nil, Gov: gov}, log), store
}

func TestHealthzReturnsOK(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
}

func TestReadyzReturnsTrueWhenStoreReachable(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestDebugTagUsageReturnsGovernorSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/debug/tag-usage", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
}

func TestAttachTraceContextEchoesOrGeneratesHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-Id", "trace-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Trace-Id"); got != "trace-123" {
		t.Fatalf("expected echoed trace id, got %q", got)
	}
	if got := rec.Header().Get("X-Request-Id"); got == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestDebugBlobsListsStepDataKeys(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	router, store := newTestRouter(t)
	if err := store.Put(ctx, blob.CategoryStepData, "a", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/blobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"a"`)) {
		t.Fatalf("expected listed key %q in body %s", "a", rec.Body.String())
	}
}

func TestDebugBlobsRejectsUnknownCategory(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/debug/blobs?category=bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}
