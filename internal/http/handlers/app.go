package handlers

import (
	"encoding/json"
	"net/http"

	"listingpilot/internal/domain"
	"listingpilot/internal/infra"
	"listingpilot/internal/pipeline"
	"listingpilot/internal/storage"
)

// App bundles the dependencies the HTTP handlers need. Dispatcher is nil when
// jobs are drained by the separate worker binary instead of in-process.
type App struct {
	Store          domain.JobStore
	Dispatcher     *pipeline.Dispatcher
	Uploads        *storage.FileStore
	MaxUploadBytes int64
	Logger         infra.Logger

	// Backend names surfaced on the health endpoint so operators can see
	// whether the deployment runs with real credentials or static fallbacks.
	StoreBackend    string
	CacheBackend    string
	VisionProvider  string
	MarketProvider  string
	ContentProvider string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
