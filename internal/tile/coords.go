// Package tile addresses Web Mercator overlay tiles.
package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level overlay tiles are served for.
const MaxZoom = 22

// Coords represents a tile coordinate in the Web Mercator tile system (z/x/y)
type Coords struct {
	Z uint32
	X uint32
	Y uint32
}

// String returns the tile coordinate as "z{zoom}_x{x}_y{y}"
func (c Coords) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Path returns the file name for this tile
func (c Coords) Path(extension string) string {
	return fmt.Sprintf("%s.%s", c.String(), extension)
}

// Tile returns the maptile.Tile for this coordinate
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Bound returns the WGS84 extent of the tile.
func (c Coords) Bound() orb.Bound {
	return c.Tile().Bound()
}

// Valid reports whether the coordinate exists at its zoom level.
func (c Coords) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	n := uint32(1) << c.Z
	return c.X < n && c.Y < n
}

// ParseCoords parses a tile string like "z13_x4297_y2754" into Coords
func ParseCoords(s string) (Coords, error) {
	var c Coords
	_, err := fmt.Sscanf(s, "z%d_x%d_y%d", &c.Z, &c.X, &c.Y)
	if err != nil {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	if c.String() != s {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	if !c.Valid() {
		return c, fmt.Errorf("tile %s out of range", s)
	}
	return c, nil
}

// Projector maps WGS84 lon/lat into the pixel space of a tile.
type Projector struct {
	zoom     uint32
	tileSize int
	offsetX  float64
	offsetY  float64
}

// NewProjector returns a projector whose origin is the top-left pixel of c.
func NewProjector(c Coords, tileSize int) Projector {
	return Projector{
		zoom:     c.Z,
		tileSize: tileSize,
		offsetX:  float64(c.X) * float64(tileSize),
		offsetY:  float64(c.Y) * float64(tileSize),
	}
}

// ToPixel maps lon/lat to local pixel coordinates. It uses Web Mercator math
// in "global pixel" space, then applies the tile offset.
func (p Projector) ToPixel(lon, lat float64) (float64, float64) {
	n := math.Pow(2, float64(p.zoom)) * float64(p.tileSize)

	globalX := (lon + 180.0) / 360.0 * n

	latRad := lat * math.Pi / 180.0
	mercY := math.Log(math.Tan(math.Pi/4.0 + latRad/2.0))
	globalY := (1.0 - mercY/math.Pi) / 2.0 * n

	return globalX - p.offsetX, globalY - p.offsetY
}

// TilesInBBox returns all tile coordinates within a bounding box across a zoom range.
// bbox: [minLon, minLat, maxLon, maxLat] in WGS84
func TilesInBBox(bbox [4]float64, zoomMin, zoomMax int) []Coords {
	tiles := make([]Coords, 0, TileCount(bbox, zoomMin, zoomMax))
	for z := zoomMin; z <= zoomMax; z++ {
		minX, maxX, minY, maxY := tileSpan(bbox, z)
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, Coords{Z: uint32(z), X: x, Y: y})
			}
		}
	}
	return tiles
}

// TileCount returns the number of tiles in a bounding box across a zoom range.
func TileCount(bbox [4]float64, zoomMin, zoomMax int) int {
	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		minX, maxX, minY, maxY := tileSpan(bbox, z)
		count += int(maxX-minX+1) * int(maxY-minY+1)
	}
	return count
}

func tileSpan(bbox [4]float64, z int) (minX, maxX, minY, maxY uint32) {
	zoom := maptile.Zoom(z)
	minTile := maptile.At(orb.Point{bbox[0], bbox[1]}, zoom)
	maxTile := maptile.At(orb.Point{bbox[2], bbox[3]}, zoom)

	// Y grows southwards, so the min corner holds the max row.
	minX, maxX = minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY = minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, maxX, minY, maxY
}
