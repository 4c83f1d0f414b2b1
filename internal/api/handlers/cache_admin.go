package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kbrauss/FMM2D/internal/cache"
)

// CacheAdminHandler exposes the solve response cache.
type CacheAdminHandler struct {
	cache cache.Cache
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(c cache.Cache) *CacheAdminHandler {
	return &CacheAdminHandler{cache: c}
}

// InvalidateCache drops every cached solve and reports how many were held.
// POST /api/cache/invalidate
func (h *CacheAdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	dropped := h.cache.Stats().Items
	h.cache.Clear()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"dropped": dropped,
	})
}

// GetCacheStats returns current cache statistics.
// GET /api/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	s := h.cache.Stats()
	ratio := 0.0
	if lookups := s.Hits + s.Misses; lookups > 0 {
		ratio = float64(s.Hits) / float64(lookups)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"hits":       s.Hits,
		"misses":     s.Misses,
		"hit_ratio":  ratio,
		"keys_added": s.KeysAdded,
		"evictions":  s.Evictions,
		"size_bytes": s.Size,
		"items":      s.Items,
	})
}
