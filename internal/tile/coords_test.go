package tile

import (
	"math"
	"testing"
)

func TestCoordsString(t *testing.T) {
	tests := []struct {
		coords   Coords
		expected string
	}{
		{Coords{Z: 13, X: 4297, Y: 2754}, "z13_x4297_y2754"},
		{Coords{Z: 0, X: 0, Y: 0}, "z0_x0_y0"},
		{Coords{Z: 18, X: 12345, Y: 67890}, "z18_x12345_y67890"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.coords.String(); got != tt.expected {
				t.Errorf("String() = %s, want %s", got, tt.expected)
			}
			if got := tt.coords.Path("png"); got != tt.expected+".png" {
				t.Errorf("Path(png) = %s", got)
			}
		})
	}
}

func TestParseCoords(t *testing.T) {
	tests := []struct {
		in      string
		want    Coords
		wantErr bool
	}{
		{in: "z13_x4297_y2754", want: Coords{Z: 13, X: 4297, Y: 2754}},
		{in: "z0_x0_y0", want: Coords{}},
		{in: "z1_x2_y0", wantErr: true},
		{in: "z23_x0_y0", wantErr: true},
		{in: "13/4297/2754", wantErr: true},
		{in: "z13_x4297_y2754_extra", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCoords(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseCoords(%q) succeeded with %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCoords(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseCoords(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCoordsBound(t *testing.T) {
	// Tile covering Hanover
	coords := Coords{Z: 13, X: 4297, Y: 2754}
	b := coords.Bound()

	if b.Min.Lon() >= b.Max.Lon() || b.Min.Lat() >= b.Max.Lat() {
		t.Fatalf("bound not ordered: %v", b)
	}
	if b.Min.Lon() < 9 || b.Max.Lon() > 10.5 || b.Min.Lat() < 52 || b.Max.Lat() > 53 {
		t.Errorf("bound %v outside the Hanover area", b)
	}
}

func TestProjectorCorners(t *testing.T) {
	coords := Coords{Z: 13, X: 4297, Y: 2754}
	p := NewProjector(coords, 256)
	b := coords.Bound()

	x, y := p.ToPixel(b.Min.Lon(), b.Max.Lat())
	if math.Abs(x) > 1e-3 || math.Abs(y) > 1e-3 {
		t.Errorf("top-left corner maps to (%f, %f), want (0, 0)", x, y)
	}

	x, y = p.ToPixel(b.Max.Lon(), b.Min.Lat())
	if math.Abs(x-256) > 1e-3 || math.Abs(y-256) > 1e-3 {
		t.Errorf("bottom-right corner maps to (%f, %f), want (256, 256)", x, y)
	}
}

func TestTilesInBBox(t *testing.T) {
	bbox := [4]float64{9.70, 52.35, 9.80, 52.40}

	tiles := TilesInBBox(bbox, 10, 13)
	if len(tiles) != TileCount(bbox, 10, 13) {
		t.Fatalf("TilesInBBox returned %d tiles, TileCount says %d", len(tiles), TileCount(bbox, 10, 13))
	}

	perZoom := map[uint32]int{}
	for _, c := range tiles {
		if !c.Valid() {
			t.Errorf("invalid tile %s", c)
		}
		perZoom[c.Z]++
	}
	for z := uint32(10); z <= 13; z++ {
		if perZoom[z] == 0 {
			t.Errorf("no tiles at zoom %d", z)
		}
	}
	if perZoom[13] < perZoom[10] {
		t.Errorf("deeper zoom should not have fewer tiles: z10=%d z13=%d", perZoom[10], perZoom[13])
	}
}
