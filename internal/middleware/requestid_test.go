package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbrauss/FMM2D/internal/logger"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := generateRequestID()
	id2 := generateRequestID()

	if id1 == id2 {
		t.Error("generateRequestID should return unique IDs")
	}
	if len(id1) != 32 {
		t.Errorf("Request ID length should be 32, got %d", len(id1))
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"existing id kept", "existing-request-id", true},
		{"oversized id replaced", strings.Repeat("x", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = r.Context().Value(logger.RequestIDKey).(string)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			header := w.Header().Get(RequestIDHeader)
			if seen == "" || seen != header {
				t.Fatalf("context id %q does not match header %q", seen, header)
			}
			if tt.keep && header != tt.incoming {
				t.Errorf("expected %q to be kept, got %q", tt.incoming, header)
			}
			if !tt.keep && len(header) != 32 {
				t.Errorf("expected a generated id, got %q", header)
			}
		})
	}
}

func TestRequestIDMiddleware_TagsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil).WithContext(ctx)
	req.Header.Set(RequestIDHeader, "abc123")
	RequestID(okHandler).ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected one span, got %d", len(ended))
	}
	want := attribute.String("request.id", "abc123")
	for _, kv := range ended[0].Attributes() {
		if kv == want {
			return
		}
	}
	t.Errorf("span attributes %v missing %v", ended[0].Attributes(), want)
}
