package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/MeKo-Tech/trafficmap/internal/geojson"
	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/source"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Layers.Status())
}

func (s *Server) layerFor(w http.ResponseWriter, r *http.Request) (*layer.Layer, bool) {
	cat, err := types.ParseCategory(r.PathValue("category"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	l, ok := s.cfg.Layers.Get(cat)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no layer for category "+string(cat))
		return nil, false
	}
	return l, true
}

// handleLayerFeatures serves the loaded features of a layer as GeoJSON with
// the style each one renders with right now.
func (s *Server) handleLayerFeatures(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layerFor(w, r)
	if !ok {
		return
	}

	data, err := geojson.ToGeoJSONBytes(l.Features(), func(f types.Feature) interface{} {
		return l.StyleFor(f.ID)
	})
	if err != nil {
		s.log().Error("Failed to encode layer", "category", l.Category(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to encode layer")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// handleReload re-runs the load of one source.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	l, ok := s.layerFor(w, r)
	if !ok {
		return
	}

	// Detached from the request: a client going away must not fail the load.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LoadTimeout)
	pending := l.Source().Load(ctx)
	go func() {
		<-pending.Done()
		cancel()
		if s.cfg.Surface != nil {
			s.cfg.Surface.Invalidate()
		}
	}()

	_, err := pending.Wait(r.Context())
	status := l.Source().Status()
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, status)
	case errors.Is(err, source.ErrLoadFailure):
		s.log().Warn("Reload failed", "category", l.Category(), "error", err)
		s.writeJSON(w, http.StatusBadGateway, status)
	default:
		// Request gone or load superseded; the load itself keeps going.
		s.writeJSON(w, http.StatusAccepted, status)
	}
}
