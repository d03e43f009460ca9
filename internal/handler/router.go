package handler

import (
	"log/slog"
	"net/http"

	"github.com/S1riyS/vnodefs/internal/middleware"
)

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// System endpoints
	mux.HandleFunc("/health", h.HandleHealthCheck)

	// API endpoints
	mux.HandleFunc("/api/stat", h.HandleStat)
	mux.HandleFunc("/api/stat_ino", h.HandleStatIno)
	mux.HandleFunc("/api/mkdir", h.HandleMkdir)
	mux.HandleFunc("/api/unlink", h.HandleUnlink)
	mux.HandleFunc("/api/link", h.HandleLink)
	mux.HandleFunc("/api/rename", h.HandleRename)
	mux.HandleFunc("/api/readdir", h.HandleReaddir)
	mux.HandleFunc("/api/open", h.HandleOpen)
	mux.HandleFunc("/api/read", h.HandleRead)
	mux.HandleFunc("/api/write", h.HandleWrite)
	mux.HandleFunc("/api/close", h.HandleClose)
	mux.HandleFunc("/api/events", h.HandleEvents)
}

// NewRouter returns the API wrapped in the request id and logging
// middleware.
func (h *Handler) NewRouter(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return middleware.RequestIDMiddleware(middleware.LoggerMiddleware(logger)(mux))
}
