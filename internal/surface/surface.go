// Package surface is the rendering surface the interaction core drives:
// layers are added to it, features are hit-tested by pointer position, and
// individual features are re-styled.
package surface

import (
	"log/slog"
	"math"
	"sync"

	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/tile"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Surface is the capability a map renderer provides.
type Surface interface {
	AddLayer(l *layer.Layer)
	FeatureAt(pt orb.Point, tolerance float64) (types.FeatureKey, bool)
	Restyle(key types.FeatureKey, s style.Style)
}

var _ Surface = (*Memory)(nil)

// Config configures a Memory surface.
type Config struct {
	TileSize  int
	CacheSize int
	Logger    *slog.Logger
}

// Memory is a server-side Surface. It hit-tests against the loaded
// features and rasterizes overlay tiles with the styles currently in effect.
type Memory struct {
	tileSize  int
	cacheSize int
	logger    *slog.Logger

	mu      sync.RWMutex
	layers  []*layer.Layer
	applied map[types.FeatureKey]style.Style
	version uint64
	cache   map[tile.Coords]cachedTile
}

type cachedTile struct {
	version uint64
	png     []byte
}

// NewMemory creates an empty surface.
func NewMemory(cfg Config) *Memory {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 256
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	return &Memory{
		tileSize:  cfg.TileSize,
		cacheSize: cfg.CacheSize,
		logger:    cfg.Logger,
		applied:   make(map[types.FeatureKey]style.Style),
		cache:     make(map[tile.Coords]cachedTile),
	}
}

// AddLayer stacks l on top of the layers added before it.
func (m *Memory) AddLayer(l *layer.Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers = append(m.layers, l)
	m.version++
}

// Layers returns the layers bottom to top.
func (m *Memory) Layers() []*layer.Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*layer.Layer, len(m.layers))
	copy(out, m.layers)
	return out
}

// Restyle records the style a feature now renders with and invalidates
// cached tiles.
func (m *Memory) Restyle(key types.FeatureKey, s style.Style) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[key] = s
	m.version++
	m.log().Debug("Feature restyled", "feature", key.String(), "style", s.Name)
}

// Applied returns the last style passed to Restyle for key.
func (m *Memory) Applied(key types.FeatureKey) (style.Style, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.applied[key]
	return s, ok
}

func (m *Memory) appliedSnapshot() map[types.FeatureKey]style.Style {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.FeatureKey]style.Style, len(m.applied))
	for k, s := range m.applied {
		out[k] = s
	}
	return out
}

// Invalidate drops cached tiles, e.g. after a source reload.
func (m *Memory) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
}

// Version changes whenever rendered output may change.
func (m *Memory) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// FeatureAt returns the feature under pt, searching the topmost layer
// first. tolerance is in degrees. Within a layer the nearest feature wins.
func (m *Memory) FeatureAt(pt orb.Point, tolerance float64) (types.FeatureKey, bool) {
	layers := m.Layers()

	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		best := math.Inf(1)
		var hit types.FeatureKey
		for _, f := range l.Features() {
			d, ok := distance(f.Geometry, pt, tolerance)
			if ok && d < best {
				best = d
				hit = f.Key()
			}
		}
		if !math.IsInf(best, 1) {
			return hit, true
		}
	}
	return types.FeatureKey{}, false
}

// distance returns the planar distance from pt to g when it is within
// tolerance. Points inside a polygon are at distance zero.
func distance(g orb.Geometry, pt orb.Point, tolerance float64) (float64, bool) {
	if g == nil {
		return 0, false
	}
	if !g.Bound().Pad(tolerance).Contains(pt) {
		return 0, false
	}

	switch geom := g.(type) {
	case orb.Polygon:
		if planar.PolygonContains(geom, pt) {
			return 0, true
		}
	case orb.MultiPolygon:
		if planar.MultiPolygonContains(geom, pt) {
			return 0, true
		}
	}

	d := planar.DistanceFrom(g, pt)
	return d, d <= tolerance
}

func (m *Memory) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}
