// Package hover implements the hover state machine: at most one feature
// across all layers renders with the hover style, and clearing it restores
// exactly the style it rendered with before.
package hover

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/metrics"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// ErrFeatureNotFound is returned by SetHover when no layer holds the id.
var ErrFeatureNotFound = errors.New("feature not found")

// Restyler is notified whenever a feature's rendered style changes.
// It is called with the controller lock held and must not call back into
// the controller.
type Restyler interface {
	Restyle(key types.FeatureKey, s style.Style)
}

// Option configures a Controller.
type Option func(*Controller)

// WithRestyler registers r to receive style changes.
func WithRestyler(r Restyler) Option {
	return func(c *Controller) { c.restyler = r }
}

// WithLogger sets the logger used for transition debugging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller owns the assignment table and the active hover marker.
type Controller struct {
	layers  *layer.Set
	catalog *style.Catalog
	table   *Table

	restyler Restyler
	logger   *slog.Logger

	mu        sync.Mutex
	active    types.FeatureKey
	hasActive bool
}

// NewController creates a controller writing to table. The same table must
// be the one the layers read from.
func NewController(layers *layer.Set, catalog *style.Catalog, table *Table, opts ...Option) *Controller {
	c := &Controller{layers: layers, catalog: catalog, table: table}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHover makes id the hovered feature, looked up across layers in their
// fixed order. Hovering the already hovered id is a no-op. Any other hovered
// feature is restored first. An id absent from every layer creates no
// assignment and returns ErrFeatureNotFound.
func (c *Controller) SetHover(id types.FeatureID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasActive && c.active.ID == id {
		return nil
	}
	c.releaseActiveLocked()

	l, _, ok := c.layers.Find(id)
	if !ok {
		return c.notFound(types.FeatureKey{ID: id})
	}
	c.hoverLocked(types.FeatureKey{Category: l.Category(), ID: id})
	return nil
}

// SetHoverKey is SetHover for a feature addressed by category and id, as a
// hit test reports it. Ids shared by several categories resolve to the
// given category only.
func (c *Controller) SetHoverKey(key types.FeatureKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasActive && c.active == key {
		return nil
	}
	c.releaseActiveLocked()

	l, ok := c.layers.Get(key.Category)
	if ok {
		_, ok = l.Lookup(key.ID)
	}
	if !ok {
		return c.notFound(key)
	}
	c.hoverLocked(key)
	return nil
}

func (c *Controller) releaseActiveLocked() {
	if c.hasActive {
		c.clearLocked(c.active.ID)
	}
}

func (c *Controller) notFound(key types.FeatureKey) error {
	metrics.HoverNotFoundTotal.Inc()
	c.log().Debug("Hover target not found", "feature", key.String())
	return ErrFeatureNotFound
}

func (c *Controller) hoverLocked(key types.FeatureKey) {
	var prior *style.Style
	if a, ok := c.table.Assignment(key); ok {
		// Snapshot what renders right now, not a cached original.
		rendered := a.Current
		prior = &rendered
	}

	hover := c.catalog.Hover()
	c.table.set(key, style.Assignment{Current: hover, Prior: prior})
	c.active = key
	c.hasActive = true

	metrics.HoverTransitionsTotal.WithLabelValues("enter").Inc()
	c.log().Debug("Hover set", "feature", key.String())
	c.restyle(key, hover)
}

// ClearHover restores the feature with id to the style it rendered with
// before it was hovered. The empty id and ids no layer holds are ignored.
func (c *Controller) ClearHover(id types.FeatureID) {
	if id.IsZero() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked(id)
}

// ClearActive restores whatever feature is hovered.
func (c *Controller) ClearActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseActiveLocked()
}

// Active returns the hovered feature, if any.
func (c *Controller) Active() (types.FeatureKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.hasActive
}

func (c *Controller) clearLocked(id types.FeatureID) {
	var keys []types.FeatureKey
	if c.hasActive && c.active.ID == id {
		// Restored even if the feature vanished from its layer.
		keys = append(keys, c.active)
		c.hasActive = false
		c.active = types.FeatureKey{}
	}
	for _, l := range c.layers.FindAll(id) {
		key := types.FeatureKey{Category: l.Category(), ID: id}
		if len(keys) == 0 || keys[0] != key {
			keys = append(keys, key)
		}
	}

	for _, key := range keys {
		a, ok := c.table.Assignment(key)
		if !ok {
			continue
		}

		if a.Prior == nil {
			c.table.remove(key)
		} else {
			c.table.set(key, style.Assignment{Current: *a.Prior})
		}

		metrics.HoverTransitionsTotal.WithLabelValues("exit").Inc()
		c.log().Debug("Hover cleared", "feature", key.String())
		c.restyle(key, style.Select(key, c.table, c.catalog))
	}
}

func (c *Controller) restyle(key types.FeatureKey, s style.Style) {
	if c.restyler != nil {
		c.restyler.Restyle(key, s)
	}
}

func (c *Controller) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
