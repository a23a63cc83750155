package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/MeKo-Tech/trafficmap/internal/tile"
)

// serveTile renders overlay tiles: /tiles/z13_x4317_y2692.png
func (s *Server) serveTile(w http.ResponseWriter, r *http.Request) {
	coords, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	data, err := s.cfg.Surface.TilePNG(coords)
	if err != nil {
		s.log().Error("Failed to render tile", "coords", coords.String(), "error", err)
		http.Error(w, "failed to render tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", s.cfg.CacheControl)
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(data); err != nil {
		s.log().Debug("Failed to write tile", "coords", coords.String(), "error", err)
	}
}

func parseTilePath(requestPath string) (tile.Coords, bool) {
	if !strings.HasPrefix(requestPath, "/tiles/") {
		return tile.Coords{}, false
	}
	base := path.Base(requestPath)
	if !strings.HasSuffix(base, ".png") {
		return tile.Coords{}, false
	}

	coords, err := tile.ParseCoords(strings.TrimSuffix(base, ".png"))
	if err != nil {
		return tile.Coords{}, false
	}
	return coords, true
}
