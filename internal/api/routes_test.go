package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kbrauss/FMM2D/internal/apierr"
	"github.com/kbrauss/FMM2D/internal/cache"
	"github.com/kbrauss/FMM2D/internal/middleware"
	"github.com/kbrauss/FMM2D/internal/solve"
)

func newTestRouter(t *testing.T, c cache.Cache, rl *middleware.RateLimiter) http.Handler {
	t.Helper()
	svc := solve.NewService(solve.Config{
		Order:            12,
		MinLevel:         2,
		MaxLevel:         6,
		ClusterThreshold: 5,
		MaxPoints:        1000,
		CompareMaxPairs:  1_000_000,
		Timeout:          10 * time.Second,
		CacheTTL:         time.Minute,
	}, c)
	return NewRouter(Options{
		Solver:       svc,
		Cache:        c,
		RateLimiter:  rl,
		MaxBodyBytes: 1 << 20,
		MaxPoints:    1000,
	})
}

const latticeBody = `{"sources":[[0.125,0.125],[0.125,0.375],[0.375,0.125],[0.375,0.375]],"charges":[1,1,1,1],"targets":[[0.75,0.75]],"level":2}`

func post(h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoutesRegistered(t *testing.T) {
	router := newTestRouter(t, cache.NewMockCache(), nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodPost, "/api/solve"},
		{http.MethodPost, "/api/solve/direct"},
		{http.MethodGet, "/api/cache/stats"},
		{http.MethodPost, "/api/cache/invalidate"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(latticeBody))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code == http.StatusNotFound {
				t.Errorf("%s %s not registered", tt.method, tt.path)
			}
		})
	}
}

func TestCacheRoutesRequireCache(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a cache, got %d", rr.Code)
	}

	var resp apierr.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != apierr.ErrResourceNotFound {
		t.Errorf("expected %s, got %s", apierr.ErrResourceNotFound, resp.Error.Code)
	}
}

func TestSolveEndToEnd(t *testing.T) {
	router := newTestRouter(t, cache.NewMockCache(), nil)

	rr := post(router, "/api/solve", latticeBody, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers not applied")
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Error("solve responses should carry an ETag")
	}

	var res solve.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Level != 2 || len(res.Potentials) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	if got := rr.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}

	again := post(router, "/api/solve", latticeBody, nil)
	if again.Code != http.StatusOK {
		t.Fatalf("expected 200 for cached solve, got %d", again.Code)
	}
	if got := again.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second solve should be served from cache, X-Cache = %q", got)
	}
	if !bytes.Equal(again.Body.Bytes(), rr.Body.Bytes()) || again.Header().Get("ETag") != etag {
		t.Errorf("cached body differs from computed body:\n%s\n%s", rr.Body.String(), again.Body.String())
	}
}

func TestSolveNotModified(t *testing.T) {
	for _, tc := range []struct {
		name  string
		cache cache.Cache
	}{
		{"cached", cache.NewMockCache()},
		{"uncached", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, tc.cache, nil)

			first := post(router, "/api/solve", latticeBody, map[string]string{"Accept-Encoding": "gzip"})
			if first.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", first.Code)
			}
			etag := first.Header().Get("ETag")

			second := post(router, "/api/solve", latticeBody, map[string]string{"If-None-Match": etag, "Accept-Encoding": "gzip"})
			if second.Code != http.StatusNotModified {
				t.Fatalf("repeat with If-None-Match: status = %d, want 304 (etag %s, got %s)", second.Code, etag, second.Header().Get("ETag"))
			}
			if second.Body.Len() != 0 {
				t.Errorf("304 should have no body, got %d bytes", second.Body.Len())
			}
			if enc := second.Header().Get("Content-Encoding"); enc != "" {
				t.Errorf("304 should not be encoded, got %q", enc)
			}

			changed := strings.Replace(latticeBody, `[0.75,0.75]`, `[0.7,0.75]`, 1)
			if rr := post(router, "/api/solve", changed, map[string]string{"If-None-Match": etag}); rr.Code != http.StatusOK {
				t.Errorf("different request should not match, got %d", rr.Code)
			}
		})
	}
}

func TestSolveCompression(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	for _, enc := range []string{"br", "gzip", ""} {
		t.Run("accept "+enc, func(t *testing.T) {
			rr := post(router, "/api/solve/direct", latticeBody, map[string]string{"Accept-Encoding": enc})
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
			if !strings.Contains(rr.Header().Get("Vary"), "Accept-Encoding") {
				t.Errorf("expected Vary to contain Accept-Encoding, got %q", rr.Header().Get("Vary"))
			}
			if got := rr.Header().Get("Content-Encoding"); got != enc {
				t.Errorf("Content-Encoding = %q, want %q", got, enc)
			}
		})
	}
}

func TestSolveErrors(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   apierr.ErrorCode
	}{
		{"malformed json", `{"sources":`, http.StatusBadRequest, apierr.ErrValidationInvalidJSON},
		{"unknown field", `{"sauces":[]}`, http.StatusBadRequest, apierr.ErrValidationInvalidJSON},
		{"empty body", ``, http.StatusBadRequest, apierr.ErrValidationMissingField},
		{"out of domain", `{"sources":[[1.5,0.5]],"targets":[[0.5,0.5]]}`, http.StatusBadRequest, apierr.ErrSolveInvalidInput},
		{"charge mismatch", `{"sources":[[0.5,0.5]],"charges":[1,2],"targets":[[0.25,0.5]]}`, http.StatusBadRequest, apierr.ErrSolveInvalidInput},
		{"bad level", `{"sources":[[0.5,0.5]],"targets":[[0.25,0.5]],"level":12}`, http.StatusBadRequest, apierr.ErrSolveInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(router, "/api/solve", tt.body, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			var resp apierr.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.RequestID == "" {
				t.Error("errors should carry the request id")
			}
		})
	}
}

func TestSolveRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(100, 100, 0.001, 1)
	defer rl.Stop()
	router := newTestRouter(t, nil, rl)

	if rr := post(router, "/api/solve", latticeBody, nil); rr.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rr.Code)
	}
	if rr := post(router, "/api/solve", latticeBody, nil); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rr.Code)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", rr.Code)
	}
}
