// Package style holds the immutable style catalog and the render-time style
// selection function.
package style

import (
	"fmt"
	"sort"

	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// Name identifies a style in the catalog.
type Name string

const (
	NamePoint   Name = "point"
	NameLine    Name = "line"
	NamePolygon Name = "polygon"
	NameHover   Name = "hover"
)

// Paint is a fill/stroke pair.
type Paint struct {
	Fill        Color   `json:"fillColor"`
	Stroke      Color   `json:"strokeColor"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// Style is an immutable visual descriptor. Marker applies to point
// geometries (drawn as circles of Radius), Path to lines and polygons.
type Style struct {
	Name   Name    `json:"name"`
	Radius float64 `json:"radius"`
	Marker Paint   `json:"marker"`
	Path   Paint   `json:"path"`
}

// Options is the configuration form of a Paint (plus marker radius).
type Options struct {
	Radius      float64 `mapstructure:"radius"`
	FillColor   string  `mapstructure:"fill_color"`
	StrokeColor string  `mapstructure:"stroke_color"`
	StrokeWidth float64 `mapstructure:"stroke_width"`
}

// Spec overrides parts of a default style. Nil sections keep the default.
type Spec struct {
	Marker *Options `mapstructure:"marker"`
	Path   *Options `mapstructure:"path"`
}

// Catalog is a closed, read-only set of styles.
type Catalog struct {
	styles map[Name]Style
}

func defaultStyles() map[Name]Style {
	return map[Name]Style{
		NamePoint: {
			Name:   NamePoint,
			Radius: 5,
			Marker: Paint{Fill: MustParseColor("#2563eb"), Stroke: MustParseColor("#ffffff"), StrokeWidth: 2},
		},
		NameLine: {
			Name: NameLine,
			Path: Paint{Stroke: MustParseColor("#10b981"), StrokeWidth: 3},
		},
		NamePolygon: {
			Name: NamePolygon,
			Path: Paint{
				Fill:        MustParseColor("rgba(239,68,68,0.2)"),
				Stroke:      MustParseColor("#ef4444"),
				StrokeWidth: 2,
			},
		},
		NameHover: {
			Name:   NameHover,
			Radius: 7,
			Marker: Paint{Fill: MustParseColor("#f59e0b"), Stroke: MustParseColor("#111827"), StrokeWidth: 2},
			Path: Paint{
				Fill:        MustParseColor("rgba(245,158,11,0.15)"),
				Stroke:      MustParseColor("#f59e0b"),
				StrokeWidth: 4,
			},
		},
	}
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{styles: defaultStyles()}
}

// NewCatalog builds a catalog from the defaults with specs applied on top.
func NewCatalog(specs map[Name]Spec) (*Catalog, error) {
	styles := defaultStyles()

	for name, spec := range specs {
		st, ok := styles[name]
		if !ok {
			return nil, fmt.Errorf("unknown style %q", name)
		}
		if spec.Marker != nil {
			if spec.Marker.Radius < 0 {
				return nil, fmt.Errorf("style %s: radius must not be negative", name)
			}
			if spec.Marker.Radius > 0 {
				st.Radius = spec.Marker.Radius
			}
			p, err := applyOptions(st.Marker, *spec.Marker)
			if err != nil {
				return nil, fmt.Errorf("style %s marker: %w", name, err)
			}
			st.Marker = p
		}
		if spec.Path != nil {
			p, err := applyOptions(st.Path, *spec.Path)
			if err != nil {
				return nil, fmt.Errorf("style %s path: %w", name, err)
			}
			st.Path = p
		}
		styles[name] = st
	}

	return &Catalog{styles: styles}, nil
}

func applyOptions(p Paint, o Options) (Paint, error) {
	if o.FillColor != "" {
		c, err := ParseColor(o.FillColor)
		if err != nil {
			return p, err
		}
		p.Fill = c
	}
	if o.StrokeColor != "" {
		c, err := ParseColor(o.StrokeColor)
		if err != nil {
			return p, err
		}
		p.Stroke = c
	}
	if o.StrokeWidth < 0 {
		return p, fmt.Errorf("stroke width must not be negative")
	}
	if o.StrokeWidth > 0 {
		p.StrokeWidth = o.StrokeWidth
	}
	return p, nil
}

// Get looks a style up by name.
func (c *Catalog) Get(name Name) (Style, bool) {
	st, ok := c.styles[name]
	return st, ok
}

// ForCategory returns the default style of a category.
func (c *Catalog) ForCategory(cat types.Category) Style {
	switch cat {
	case types.CategoryLine:
		return c.styles[NameLine]
	case types.CategoryPolygon:
		return c.styles[NamePolygon]
	default:
		return c.styles[NamePoint]
	}
}

// Hover returns the hover style.
func (c *Catalog) Hover() Style {
	return c.styles[NameHover]
}

// All returns every style sorted by name.
func (c *Catalog) All() []Style {
	out := make([]Style, 0, len(c.styles))
	for _, st := range c.styles {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
