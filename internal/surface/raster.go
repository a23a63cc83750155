package surface

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/MeKo-Tech/trafficmap/internal/metrics"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/tile"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

// circleSegments is the polygon resolution used for markers and joins.
const circleSegments = 24

// TilePNG returns the overlay tile for c as PNG, reusing the cached
// encoding when nothing was restyled or reloaded since.
func (m *Memory) TilePNG(c tile.Coords) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("tile %s out of range", c)
	}

	m.mu.RLock()
	version := m.version
	cached, ok := m.cache[c]
	m.mu.RUnlock()
	if ok && cached.version == version {
		return cached.png, nil
	}

	data, err := EncodePNG(m.RenderTile(c))
	if err != nil {
		return nil, fmt.Errorf("encode tile %s: %w", c, err)
	}

	m.mu.Lock()
	if len(m.cache) >= m.cacheSize {
		m.cache = make(map[tile.Coords]cachedTile)
	}
	m.cache[c] = cachedTile{version: version, png: data}
	m.mu.Unlock()

	return data, nil
}

// EncodePNG encodes a rendered tile.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderTile rasterizes every layer, bottom to top, into a transparent
// tile. A feature is drawn with the style last passed to Restyle, or with
// the one its layer selects if it was never restyled.
func (m *Memory) RenderTile(c tile.Coords) *image.NRGBA {
	tr := &tileRenderer{
		proj: tile.NewProjector(c, m.tileSize),
		size: m.tileSize,
		dst:  image.NewNRGBA(image.Rect(0, 0, m.tileSize, m.tileSize)),
		ras:  vector.NewRasterizer(m.tileSize, m.tileSize),
	}

	// Features reaching into the tile from outside still paint their edges.
	view := c.Bound()
	pad := view.Pad(math.Max(view.Max.Lon()-view.Min.Lon(), view.Max.Lat()-view.Min.Lat()) * 0.1)

	applied := m.appliedSnapshot()
	for _, l := range m.Layers() {
		for _, f := range l.Features() {
			if f.Geometry == nil || !f.Geometry.Bound().Intersects(pad) {
				continue
			}
			s, ok := applied[types.FeatureKey{Category: l.Category(), ID: f.ID}]
			if !ok {
				s = l.StyleFor(f.ID)
			}
			tr.drawFeature(f.Geometry, s)
		}
	}

	metrics.TilesRenderedTotal.Inc()
	return tr.dst
}

type tileRenderer struct {
	proj tile.Projector
	size int
	dst  *image.NRGBA
	ras  *vector.Rasterizer
}

func (r *tileRenderer) drawFeature(g orb.Geometry, s style.Style) {
	switch geom := g.(type) {
	case orb.Point:
		r.drawMarker(geom, s)
	case orb.MultiPoint:
		for _, p := range geom {
			r.drawMarker(p, s)
		}
	case orb.LineString:
		r.strokeLines(s.Path, geom)
	case orb.MultiLineString:
		r.strokeLines(s.Path, geom...)
	case orb.Ring:
		r.drawPolygon(orb.Polygon{geom}, s.Path)
	case orb.Polygon:
		r.drawPolygon(geom, s.Path)
	case orb.MultiPolygon:
		for _, p := range geom {
			r.drawPolygon(p, s.Path)
		}
	case orb.Collection:
		for _, sub := range geom {
			r.drawFeature(sub, s)
		}
	}
}

func (r *tileRenderer) drawMarker(p orb.Point, s style.Style) {
	x, y := r.proj.ToPixel(p.Lon(), p.Lat())
	radius := s.Radius
	if radius <= 0 {
		radius = s.Marker.StrokeWidth
	}

	if !s.Marker.Fill.IsZero() {
		r.reset()
		r.circle(x, y, radius)
		r.paint(s.Marker.Fill.NRGBA())
	}
	if s.Marker.StrokeWidth > 0 && !s.Marker.Stroke.IsZero() {
		// Outline ring: outer circle minus inner circle of opposite winding.
		r.reset()
		r.circle(x, y, radius+s.Marker.StrokeWidth/2)
		r.circleReverse(x, y, math.Max(0, radius-s.Marker.StrokeWidth/2))
		r.paint(s.Marker.Stroke.NRGBA())
	}
}

func (r *tileRenderer) drawPolygon(poly orb.Polygon, p style.Paint) {
	if len(poly) == 0 {
		return
	}

	if !p.Fill.IsZero() {
		r.reset()
		for _, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			for i, pt := range ring {
				x, y := r.proj.ToPixel(pt[0], pt[1])
				if i == 0 {
					r.ras.MoveTo(float32(x), float32(y))
				} else {
					r.ras.LineTo(float32(x), float32(y))
				}
			}
			r.ras.ClosePath()
		}
		r.paint(p.Fill.NRGBA())
	}

	outlines := make([]orb.LineString, 0, len(poly))
	for _, ring := range poly {
		outlines = append(outlines, orb.LineString(ring))
	}
	r.strokeLines(p, outlines...)
}

// strokeLines draws all lines in one pass so overlapping segments and joins
// of a translucent stroke do not darken each other.
func (r *tileRenderer) strokeLines(p style.Paint, lines ...orb.LineString) {
	if p.StrokeWidth <= 0 || p.Stroke.IsZero() {
		return
	}
	half := p.StrokeWidth / 2

	r.reset()
	for _, ls := range lines {
		for i := 0; i < len(ls); i++ {
			x0, y0 := r.proj.ToPixel(ls[i][0], ls[i][1])
			r.circleReverse(x0, y0, half)
			if i == len(ls)-1 {
				break
			}

			x1, y1 := r.proj.ToPixel(ls[i+1][0], ls[i+1][1])
			dx, dy := x1-x0, y1-y0
			length := math.Hypot(dx, dy)
			if length == 0 {
				continue
			}
			nx, ny := -dy/length*half, dx/length*half

			r.ras.MoveTo(float32(x0+nx), float32(y0+ny))
			r.ras.LineTo(float32(x1+nx), float32(y1+ny))
			r.ras.LineTo(float32(x1-nx), float32(y1-ny))
			r.ras.LineTo(float32(x0-nx), float32(y0-ny))
			r.ras.ClosePath()
		}
	}
	r.paint(p.Stroke.NRGBA())
}

// circle adds a circle with positive winding.
func (r *tileRenderer) circle(cx, cy, radius float64) {
	r.circlePath(cx, cy, radius, 1)
}

// circleReverse adds a circle with the winding of stroke quads.
func (r *tileRenderer) circleReverse(cx, cy, radius float64) {
	r.circlePath(cx, cy, radius, -1)
}

func (r *tileRenderer) circlePath(cx, cy, radius, dir float64) {
	if radius <= 0 {
		return
	}
	for i := 0; i <= circleSegments; i++ {
		a := dir * 2 * math.Pi * float64(i) / circleSegments
		x := float32(cx + radius*math.Cos(a))
		y := float32(cy + radius*math.Sin(a))
		if i == 0 {
			r.ras.MoveTo(x, y)
		} else {
			r.ras.LineTo(x, y)
		}
	}
	r.ras.ClosePath()
}

func (r *tileRenderer) reset() {
	r.ras.Reset(r.size, r.size)
}

func (r *tileRenderer) paint(c color.NRGBA) {
	r.ras.Draw(r.dst, r.dst.Bounds(), image.NewUniform(c), image.Point{})
}
