// Package server exposes the interaction core over HTTP: feature layers
// with their resolved styles, hover and selection state, overlay tiles and
// a selection event stream.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/interaction"
	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/metrics"
	"github.com/MeKo-Tech/trafficmap/internal/selection"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/surface"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Config wires a Server.
type Config struct {
	Layers      *layer.Set
	Catalog     *style.Catalog
	Hover       *hover.Controller
	Selection   *selection.Store
	Interaction *interaction.Handler
	Surface     *surface.Memory

	// DataDir is served under /data/ when set.
	DataDir      string
	CacheControl string
	LoadTimeout  time.Duration
	// KeepAlive is the interval of SSE comment pings.
	KeepAlive time.Duration
	Logger    *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}
	return &Server{cfg: cfg}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /api/layers", s.handleLayers)
	mux.HandleFunc("GET /api/layers/{category}", s.handleLayerFeatures)
	mux.HandleFunc("POST /api/layers/{category}/reload", s.handleReload)

	mux.HandleFunc("GET /api/hover", s.handleGetHover)
	mux.HandleFunc("POST /api/hover", s.handleSetHover)
	mux.HandleFunc("DELETE /api/hover", s.handleClearHover)

	mux.HandleFunc("GET /api/selection", s.handleGetSelection)
	mux.HandleFunc("POST /api/selection", s.handleSetSelection)
	mux.HandleFunc("DELETE /api/selection", s.handleClearSelection)
	mux.HandleFunc("GET /api/selection/events", s.handleSelectionEvents)

	if s.cfg.Surface != nil {
		mux.HandleFunc("GET /tiles/", s.serveTile)
	}
	if s.cfg.DataDir != "" {
		fs := http.FileServer(http.Dir(s.cfg.DataDir))
		mux.Handle("GET /data/", http.StripPrefix("/data/", fs))
	}

	return withCORS(mux)
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Catalog.All())
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log().Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) log() *slog.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return slog.Default()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
