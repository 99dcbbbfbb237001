package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"store":   a.StoreBackend,
		"cache":   a.CacheBackend,
		"vision":  a.VisionProvider,
		"market":  a.MarketProvider,
		"content": a.ContentProvider,
	})
}
