// Package layer binds feature sources to the style catalog.
package layer

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/trafficmap/internal/source"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// Layer renders the features of one source.
type Layer struct {
	src         *source.Source
	catalog     *style.Catalog
	assignments style.Assignments
}

// New binds src to the catalog. assignments is the read side of the
// per-feature override table and may be nil.
func New(src *source.Source, catalog *style.Catalog, assignments style.Assignments) *Layer {
	return &Layer{src: src, catalog: catalog, assignments: assignments}
}

// Category returns the category of the underlying source.
func (l *Layer) Category() types.Category { return l.src.Category() }

// Source returns the underlying source.
func (l *Layer) Source() *source.Source { return l.src }

// Features returns the currently loaded features.
func (l *Layer) Features() []types.Feature { return l.src.Features() }

// Lookup finds a loaded feature by id.
func (l *Layer) Lookup(id types.FeatureID) (types.Feature, bool) { return l.src.Lookup(id) }

// StyleFor returns the style feature id renders with right now.
func (l *Layer) StyleFor(id types.FeatureID) style.Style {
	return style.Select(types.FeatureKey{Category: l.Category(), ID: id}, l.assignments, l.catalog)
}

// Set is the fixed, ordered collection of layers (point, line, polygon).
type Set struct {
	layers []*Layer
}

// NewSet orders layers by category. Each category may appear once.
func NewSet(layers ...*Layer) (*Set, error) {
	byCat := make(map[types.Category]*Layer, len(layers))
	for _, l := range layers {
		if _, dup := byCat[l.Category()]; dup {
			return nil, fmt.Errorf("duplicate layer for category %s", l.Category())
		}
		byCat[l.Category()] = l
	}

	ordered := make([]*Layer, 0, len(layers))
	for _, cat := range types.Categories {
		if l, ok := byCat[cat]; ok {
			ordered = append(ordered, l)
			delete(byCat, cat)
		}
	}
	if len(byCat) > 0 {
		return nil, fmt.Errorf("unsupported categories in layer set: %d", len(byCat))
	}

	return &Set{layers: ordered}, nil
}

// Layers returns the layers in lookup order.
func (s *Set) Layers() []*Layer {
	out := make([]*Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Get returns the layer of a category.
func (s *Set) Get(cat types.Category) (*Layer, bool) {
	for _, l := range s.layers {
		if l.Category() == cat {
			return l, true
		}
	}
	return nil, false
}

// Find returns the first layer (in lookup order) holding id.
func (s *Set) Find(id types.FeatureID) (*Layer, types.Feature, bool) {
	if id.IsZero() {
		return nil, types.Feature{}, false
	}
	for _, l := range s.layers {
		if f, ok := l.Lookup(id); ok {
			return l, f, true
		}
	}
	return nil, types.Feature{}, false
}

// FindAll returns every layer holding id.
func (s *Set) FindAll(id types.FeatureID) []*Layer {
	if id.IsZero() {
		return nil
	}
	var out []*Layer
	for _, l := range s.layers {
		if _, ok := l.Lookup(id); ok {
			out = append(out, l)
		}
	}
	return out
}

// LoadAll starts loading every source. Loads proceed independently.
func (s *Set) LoadAll(ctx context.Context) map[types.Category]*source.Pending {
	pending := make(map[types.Category]*source.Pending, len(s.layers))
	for _, l := range s.layers {
		pending[l.Category()] = l.src.Load(ctx)
	}
	return pending
}

// Status returns the lifecycle status of each layer's source.
func (s *Set) Status() []source.Status {
	out := make([]source.Status, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, l.src.Status())
	}
	return out
}
