package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/paulmach/orb"
)

// pointerRequest addresses a feature by id or by position.
type pointerRequest struct {
	Category string          `json:"category,omitempty"`
	ID       types.FeatureID `json:"id,omitempty"`
	Lon      *float64        `json:"lon,omitempty"`
	Lat      *float64        `json:"lat,omitempty"`
}

func (p pointerRequest) point() (orb.Point, bool) {
	if p.Lon == nil || p.Lat == nil {
		return orb.Point{}, false
	}
	return orb.Point{*p.Lon, *p.Lat}, true
}

type hoverResponse struct {
	Active *types.FeatureKey `json:"active"`
}

func (s *Server) hoverState() hoverResponse {
	key, ok := s.cfg.Hover.Active()
	if !ok {
		return hoverResponse{}
	}
	return hoverResponse{Active: &key}
}

func (s *Server) handleGetHover(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hoverState())
}

// handleSetHover hovers a feature by id, or whatever lies under lon/lat.
func (s *Server) handleSetHover(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !s.decode(w, r, &req) {
		return
	}

	if pt, ok := req.point(); ok {
		if s.cfg.Interaction == nil {
			s.writeError(w, http.StatusNotImplemented, "position lookup not available")
			return
		}
		s.cfg.Interaction.Move(pt)
		s.writeJSON(w, http.StatusOK, s.hoverState())
		return
	}

	if req.ID.IsZero() {
		s.writeError(w, http.StatusBadRequest, "id or lon/lat required")
		return
	}
	switch err := s.setHover(req); {
	case err == nil:
		s.writeJSON(w, http.StatusOK, s.hoverState())
	case errors.Is(err, errBadCategory):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, hover.ErrFeatureNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

var errBadCategory = errors.New("unknown category")

// setHover hovers req.ID in req.Category, or in the first layer holding it
// when no category is given.
func (s *Server) setHover(req pointerRequest) error {
	if req.Category == "" {
		return s.cfg.Hover.SetHover(req.ID)
	}
	cat, err := types.ParseCategory(req.Category)
	if err != nil {
		return fmt.Errorf("%w: %s", errBadCategory, req.Category)
	}
	return s.cfg.Hover.SetHoverKey(types.FeatureKey{Category: cat, ID: req.ID})
}

// handleClearHover clears the hover of ?id=, or whatever is hovered when no
// id is given (pointer left the map).
func (s *Server) handleClearHover(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("id") {
		s.cfg.Hover.ClearActive()
	} else {
		s.cfg.Hover.ClearHover(types.FeatureID(r.URL.Query().Get("id")))
	}
	s.writeJSON(w, http.StatusOK, s.hoverState())
}
