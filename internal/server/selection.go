package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/selection"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

type selectionRequest struct {
	pointerRequest
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type selectionResponse struct {
	Selected   bool                 `json:"selected"`
	Attributes selection.Attributes `json:"attributes"`
}

func (s *Server) selectionState() selectionResponse {
	attrs, ok := s.cfg.Selection.Current()
	return selectionResponse{Selected: ok, Attributes: attrs}
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.selectionState())
}

// handleSetSelection selects by category+id, by position, or stores the
// given attributes verbatim.
func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !s.decode(w, r, &req) {
		return
	}

	switch pt, hasPoint := req.point(); {
	case req.Attributes != nil:
		s.cfg.Selection.SetFeature(req.Attributes)
	case hasPoint:
		if s.cfg.Interaction == nil {
			s.writeError(w, http.StatusNotImplemented, "position lookup not available")
			return
		}
		s.cfg.Interaction.Click(pt)
	case !req.ID.IsZero():
		f, status, msg := s.lookupFeature(req.Category, req.ID)
		if status != http.StatusOK {
			s.writeError(w, status, msg)
			return
		}
		s.cfg.Selection.SetFeature(f.Attributes())
	default:
		s.writeError(w, http.StatusBadRequest, "attributes, id or lon/lat required")
		return
	}

	s.writeJSON(w, http.StatusOK, s.selectionState())
}

// lookupFeature finds id in the named category, or in the first layer
// holding it when category is empty.
func (s *Server) lookupFeature(category string, id types.FeatureID) (types.Feature, int, string) {
	if category == "" {
		_, f, ok := s.cfg.Layers.Find(id)
		if !ok {
			return types.Feature{}, http.StatusNotFound, "feature not found"
		}
		return f, http.StatusOK, ""
	}

	cat, err := types.ParseCategory(category)
	if err != nil {
		return types.Feature{}, http.StatusBadRequest, err.Error()
	}
	l, ok := s.cfg.Layers.Get(cat)
	if !ok {
		return types.Feature{}, http.StatusNotFound, "no layer for category " + string(cat)
	}
	f, ok := l.Lookup(id)
	if !ok {
		return types.Feature{}, http.StatusNotFound, "feature not found"
	}
	return f, http.StatusOK, ""
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.cfg.Selection.Clear()
	s.writeJSON(w, http.StatusOK, s.selectionState())
}

// handleSelectionEvents streams the selection as Server-Sent Events. Each
// event carries the latest attributes ("null" when cleared); intermediate
// values a slow client missed are not replayed.
func (s *Server) handleSelectionEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	updates, unsubscribe := s.cfg.Selection.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case attrs, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(attrs)
			if err != nil {
				s.log().Error("Failed to encode selection event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: selection\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
