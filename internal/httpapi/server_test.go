package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nodewatch/telemetryd/internal/broadcast"
	"github.com/nodewatch/telemetryd/internal/config"
	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/store"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.Open(filepath.Join(t.TempDir(), "telemetry.db"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	hub := broadcast.NewHub[model.Snapshot](4)
	srv := NewServer(config.Defaults(), s, hub, nil, model.SystemInfo{OSFamily: "linux"})
	return NewRouter(srv)
}

func TestHandleRoot(t *testing.T) {
	r := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "Ktor: Hello from Rust homeserver!" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}

func TestHandleVersion(t *testing.T) {
	r := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleInfo(t *testing.T) {
	r := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "linux") {
		t.Fatalf("expected osFamily linux in body, got %s", w.Body.String())
	}
}

func TestHandleHistoryRejectsBadRange(t *testing.T) {
	r := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/history?from=2000&to=1000", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleHistoryDefaultsReturnOK(t *testing.T) {
	r := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

