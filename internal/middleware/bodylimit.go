package middleware

import (
	"mime"
	"net/http"

	"github.com/kbrauss/FMM2D/internal/apierr"
)

// LimitBody caps request bodies at maxBytes and rejects POSTs that do not
// declare a JSON content type. Handlers see an error from the body reader
// once the cap is exceeded.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				if !isJSON(r.Header.Get("Content-Type")) {
					apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("Content-Type", "Content-Type must be application/json"))
					return
				}
				if r.ContentLength > maxBytes {
					apierr.WriteErrorWithContext(w, r, apierr.New(apierr.ErrSolveTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).
						WithDetails(map[string]any{"max_bytes": maxBytes}))
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
