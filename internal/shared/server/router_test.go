package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"medocs-backend/internal/shared/config"
)

type stubProcessRoutes struct{}

func (stubProcessRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/process", func(c *gin.Context) { c.Status(http.StatusOK) })
	rg.GET("/documents/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterDeps{
		Config:     config.Config{Env: "test"},
		Processing: stubProcessRoutes{},
	})
}

func TestPublicRoutesSkipAuth(t *testing.T) {
	router := newTestRouter()

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.Code)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status["ok"] != true || status["database"] != "memory" {
		t.Fatalf("unexpected health payload %v", status)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.Code)
	}
}

func TestMeRequiresIdentity(t *testing.T) {
	router := newTestRouter()

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-Guest-Id", "p1")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var me map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me["userId"] != "guest:p1" || me["role"] != "patient" || me["isGuest"] != true {
		t.Fatalf("unexpected me payload %v", me)
	}
}

func TestProcessRequestsAreRateLimitedSeparately(t *testing.T) {
	router := newTestRouter()

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Guest-Id", "p1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp.Code
	}

	for i := 0; i < rateLimitRules[rateGroupProcess].Burst; i++ {
		if code := send(http.MethodPost, "/api/v1/documents/doc-1/process"); code != http.StatusOK {
			t.Fatalf("process request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := send(http.MethodPost, "/api/v1/documents/doc-1/process"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", code)
	}
	if code := send(http.MethodGet, "/api/v1/documents/doc-1"); code != http.StatusOK {
		t.Fatalf("reads should use their own bucket, got %d", code)
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
