// Package interaction turns pointer events into hover transitions and
// selection updates.
package interaction

import (
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/selection"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/paulmach/orb"
)

// HitTester finds the feature under a position.
type HitTester interface {
	FeatureAt(pt orb.Point, tolerance float64) (types.FeatureKey, bool)
}

// Config wires a Handler.
type Config struct {
	Surface   HitTester
	Layers    *layer.Set
	Hover     *hover.Controller
	Selection *selection.Store
	// Tolerance is the hit radius in degrees.
	Tolerance float64
	Logger    *slog.Logger
}

// Handler dispatches pointer events. Events must be delivered in the order
// they happened; each one completes before Move/Leave/Click returns.
type Handler struct {
	cfg Config
}

// New creates a Handler. A zero Tolerance defaults to 0.0001 degrees.
func New(cfg Config) *Handler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.0001
	}
	return &Handler{cfg: cfg}
}

// Move hovers the feature under pt, or clears the hover when there is none.
// It returns the hovered feature.
func (h *Handler) Move(pt orb.Point) (types.FeatureKey, bool) {
	key, ok := h.cfg.Surface.FeatureAt(pt, h.cfg.Tolerance)
	if !ok {
		h.cfg.Hover.ClearActive()
		return types.FeatureKey{}, false
	}

	if err := h.cfg.Hover.SetHoverKey(key); err != nil {
		// The layer reloaded between hit test and hover.
		if !errors.Is(err, hover.ErrFeatureNotFound) {
			h.log().Warn("Hover failed", "feature", key.String(), "error", err)
		}
		return types.FeatureKey{}, false
	}
	return h.cfg.Hover.Active()
}

// Leave clears the hover when the pointer leaves the map.
func (h *Handler) Leave() {
	h.cfg.Hover.ClearActive()
}

// Click selects the feature under pt and publishes its attributes. Clicking
// empty map clears the selection.
func (h *Handler) Click(pt orb.Point) (types.FeatureKey, bool) {
	key, ok := h.cfg.Surface.FeatureAt(pt, h.cfg.Tolerance)
	if !ok {
		h.cfg.Selection.Clear()
		return types.FeatureKey{}, false
	}
	return h.Select(key)
}

// Select publishes the attributes of the feature with key. Unknown keys
// clear the selection.
func (h *Handler) Select(key types.FeatureKey) (types.FeatureKey, bool) {
	l, ok := h.cfg.Layers.Get(key.Category)
	if !ok {
		h.cfg.Selection.Clear()
		return types.FeatureKey{}, false
	}
	f, ok := l.Lookup(key.ID)
	if !ok {
		h.cfg.Selection.Clear()
		return types.FeatureKey{}, false
	}

	h.cfg.Selection.SetFeature(f.Attributes())
	h.log().Debug("Feature selected", "feature", key.String(), "name", f.Name())
	return key, true
}

func (h *Handler) log() *slog.Logger {
	if h.cfg.Logger != nil {
		return h.cfg.Logger
	}
	return slog.Default()
}
