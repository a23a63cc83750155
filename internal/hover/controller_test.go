package hover

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/source"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointsDoc = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":"A","geometry":{"type":"Point","coordinates":[13.40,52.52]},"properties":{"name":"Intersection 1"}},
	{"type":"Feature","id":"B","geometry":{"type":"Point","coordinates":[13.41,52.53]},"properties":{"name":"Intersection 2"}}]}`

const linesDoc = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":"L1","geometry":{"type":"LineString","coordinates":[[13.40,52.52],[13.41,52.53]]},"properties":{}}]}`

const polygonsDoc = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":7,"geometry":{"type":"Polygon","coordinates":[[[13.40,52.52],[13.41,52.52],[13.41,52.53],[13.40,52.52]]]},"properties":{}}]}`

type fixture struct {
	mem     *source.MemoryFetcher
	catalog *style.Catalog
	table   *Table
	layers  *layer.Set
	ctrl    *Controller
	rec     *recorder
}

type restyleCall struct {
	key   types.FeatureKey
	style style.Name
}

type recorder struct {
	mu    sync.Mutex
	calls []restyleCall
}

func (r *recorder) Restyle(key types.FeatureKey, s style.Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, restyleCall{key: key, style: s.Name})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		mem:     source.NewMemoryFetcher(),
		catalog: style.DefaultCatalog(),
		table:   NewTable(),
		rec:     &recorder{},
	}
	f.mem.Put("/data/semaphores.json", []byte(pointsDoc))
	f.mem.Put("/data/line.json", []byte(linesDoc))
	f.mem.Put("/data/road_cros.json", []byte(polygonsDoc))

	var layers []*layer.Layer
	for cat, endpoint := range map[types.Category]string{
		types.CategoryPoint:   "/data/semaphores.json",
		types.CategoryLine:    "/data/line.json",
		types.CategoryPolygon: "/data/road_cros.json",
	} {
		src := source.New(source.Config{Category: cat, Endpoint: endpoint, Fetcher: f.mem})
		layers = append(layers, layer.New(src, f.catalog, f.table))
	}

	set, err := layer.NewSet(layers...)
	require.NoError(t, err)
	f.layers = set
	f.reloadAll(t)

	f.ctrl = NewController(set, f.catalog, f.table, WithRestyler(f.rec))
	return f
}

func (f *fixture) reloadAll(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range f.layers.LoadAll(ctx) {
		_, err := p.Wait(ctx)
		require.NoError(t, err)
	}
}

func (f *fixture) rendered(t *testing.T, cat types.Category, id types.FeatureID) style.Style {
	t.Helper()
	l, ok := f.layers.Get(cat)
	require.True(t, ok)
	return l.StyleFor(id)
}

func (f *fixture) hoveredCount() int {
	n := 0
	for _, a := range f.table.Snapshot() {
		if a.Current.Name == style.NameHover {
			n++
		}
	}
	return n
}

func TestTwoPointScenario(t *testing.T) {
	f := newFixture(t)
	pointDefault := f.catalog.ForCategory(types.CategoryPoint)
	hover := f.catalog.Hover()

	require.NoError(t, f.ctrl.SetHover("A"))
	assert.Equal(t, hover, f.rendered(t, types.CategoryPoint, "A"))
	assert.Equal(t, pointDefault, f.rendered(t, types.CategoryPoint, "B"))

	require.NoError(t, f.ctrl.SetHover("B"))
	assert.Equal(t, pointDefault, f.rendered(t, types.CategoryPoint, "A"))
	assert.Equal(t, hover, f.rendered(t, types.CategoryPoint, "B"))

	f.ctrl.ClearHover("B")
	assert.Equal(t, pointDefault, f.rendered(t, types.CategoryPoint, "A"))
	assert.Equal(t, pointDefault, f.rendered(t, types.CategoryPoint, "B"))
	assert.Zero(t, f.table.Len())

	_, active := f.ctrl.Active()
	assert.False(t, active)

	assert.Equal(t, []restyleCall{
		{key: types.FeatureKey{Category: types.CategoryPoint, ID: "A"}, style: style.NameHover},
		{key: types.FeatureKey{Category: types.CategoryPoint, ID: "A"}, style: style.NamePoint},
		{key: types.FeatureKey{Category: types.CategoryPoint, ID: "B"}, style: style.NameHover},
		{key: types.FeatureKey{Category: types.CategoryPoint, ID: "B"}, style: style.NamePoint},
	}, f.rec.calls)
}

func TestRoundTripRestoresRenderedStyle(t *testing.T) {
	tests := []struct {
		name  string
		cat   types.Category
		id    types.FeatureID
		prior *style.Style
	}{
		{name: "point default", cat: types.CategoryPoint, id: "A"},
		{name: "line default", cat: types.CategoryLine, id: "L1"},
		{name: "polygon numeric id", cat: types.CategoryPolygon, id: "7"},
		{name: "existing override", cat: types.CategoryLine, id: "L1", prior: stylePtr(style.DefaultCatalog().ForCategory(types.CategoryPolygon))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			key := types.FeatureKey{Category: tt.cat, ID: tt.id}
			if tt.prior != nil {
				f.table.set(key, style.Assignment{Current: *tt.prior})
			}

			before := f.rendered(t, tt.cat, tt.id)
			require.NoError(t, f.ctrl.SetHover(tt.id))
			assert.Equal(t, f.catalog.Hover(), f.rendered(t, tt.cat, tt.id))

			f.ctrl.ClearHover(tt.id)
			assert.Equal(t, before, f.rendered(t, tt.cat, tt.id))

			a, ok := f.table.Assignment(key)
			if tt.prior == nil {
				assert.False(t, ok, "no assignment left behind")
			} else {
				require.True(t, ok)
				assert.Nil(t, a.Prior)
			}
		})
	}
}

func TestAtMostOneHovered(t *testing.T) {
	f := newFixture(t)

	for _, id := range []types.FeatureID{"A", "L1", "7", "B", "B", "missing", "A", "L1"} {
		_ = f.ctrl.SetHover(id)
		assert.LessOrEqual(t, f.hoveredCount(), 1, "after SetHover(%s)", id)
	}
	f.ctrl.ClearActive()
	assert.Zero(t, f.hoveredCount())
}

func TestSwitchingHoverLeavesNoOrphan(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.SetHover("L1"))
	require.NoError(t, f.ctrl.SetHover("7"))

	assert.Equal(t, f.catalog.ForCategory(types.CategoryLine), f.rendered(t, types.CategoryLine, "L1"))
	assert.Equal(t, f.catalog.Hover(), f.rendered(t, types.CategoryPolygon, "7"))

	key, ok := f.ctrl.Active()
	require.True(t, ok)
	assert.Equal(t, types.FeatureKey{Category: types.CategoryPolygon, ID: "7"}, key)
}

func TestClearHoverEmptyID(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetHover("A"))
	before := f.table.Snapshot()

	f.ctrl.ClearHover(types.NoFeature)

	assert.Equal(t, before, f.table.Snapshot())
	_, active := f.ctrl.Active()
	assert.True(t, active)
}

func TestSetHoverNotFound(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetHover("A"))
	f.rec.calls = nil

	err := f.ctrl.SetHover("nope")
	require.ErrorIs(t, err, ErrFeatureNotFound)

	// The previous hover is released before lookup; no new override exists.
	_, ok := f.table.Assignment(types.FeatureKey{Category: types.CategoryPoint, ID: "nope"})
	assert.False(t, ok)
	assert.Zero(t, f.hoveredCount())
}

func TestSetHoverNotFoundWithoutActive(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.SetHover("nope")
	require.ErrorIs(t, err, ErrFeatureNotFound)
	assert.Zero(t, f.table.Len())
	assert.Empty(t, f.rec.calls)
}

func TestSetHoverIdempotent(t *testing.T) {
	f := newFixture(t)
	key := types.FeatureKey{Category: types.CategoryPoint, ID: "A"}

	require.NoError(t, f.ctrl.SetHover("A"))
	first, ok := f.table.Assignment(key)
	require.True(t, ok)

	require.NoError(t, f.ctrl.SetHover("A"))
	second, ok := f.table.Assignment(key)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Nil(t, second.Prior, "hover style is never snapshotted as prior")
	assert.Equal(t, 1, f.table.Len())
	assert.Len(t, f.rec.calls, 1)
}

func TestSetHoverKeySharedID(t *testing.T) {
	f := newFixture(t)
	f.mem.Put("/data/line.json", []byte(`{"type":"FeatureCollection","features":[
	{"type":"Feature","id":"A","geometry":{"type":"LineString","coordinates":[[13.40,52.52],[13.41,52.53]]},"properties":{}}]}`))
	f.reloadAll(t)

	pointA := types.FeatureKey{Category: types.CategoryPoint, ID: "A"}
	lineA := types.FeatureKey{Category: types.CategoryLine, ID: "A"}

	require.NoError(t, f.ctrl.SetHoverKey(lineA))
	active, ok := f.ctrl.Active()
	require.True(t, ok)
	assert.Equal(t, lineA, active)
	assert.Equal(t, style.NameHover, f.rendered(t, types.CategoryLine, "A").Name)
	assert.Equal(t, style.NamePoint, f.rendered(t, types.CategoryPoint, "A").Name)

	require.NoError(t, f.ctrl.SetHoverKey(lineA))
	assert.Len(t, f.rec.calls, 1, "hovering the active key again is a no-op")

	require.NoError(t, f.ctrl.SetHoverKey(pointA))
	active, _ = f.ctrl.Active()
	assert.Equal(t, pointA, active)
	assert.Equal(t, style.NameLine, f.rendered(t, types.CategoryLine, "A").Name)
	assert.Equal(t, 1, f.hoveredCount())
}

func TestSetHoverKeyNotFound(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetHover("A"))

	tests := []struct {
		name string
		key  types.FeatureKey
	}{
		{name: "id only in another category", key: types.FeatureKey{Category: types.CategoryLine, ID: "B"}},
		{name: "unknown category", key: types.FeatureKey{Category: "river", ID: "A"}},
		{name: "unknown id", key: types.FeatureKey{Category: types.CategoryPoint, ID: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, f.ctrl.SetHoverKey(tt.key), ErrFeatureNotFound)
			_, ok := f.table.Assignment(tt.key)
			assert.False(t, ok)
			assert.Zero(t, f.hoveredCount())
		})
	}
}

func TestRapidHoverInOut(t *testing.T) {
	f := newFixture(t)
	before := f.rendered(t, types.CategoryPoint, "A")

	for i := 0; i < 50; i++ {
		require.NoError(t, f.ctrl.SetHover("A"))
		f.ctrl.ClearHover("A")
	}

	assert.Equal(t, before, f.rendered(t, types.CategoryPoint, "A"))
	assert.Zero(t, f.table.Len())
}

func TestClearHoverStaleReference(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetHover("A"))

	f.ctrl.ClearHover("B")
	f.ctrl.ClearHover("never-loaded")

	key, ok := f.ctrl.Active()
	require.True(t, ok)
	assert.Equal(t, types.FeatureID("A"), key.ID)
	assert.Equal(t, 1, f.table.Len())
}

func TestClearHoverVanishedFeature(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetHover("A"))

	f.mem.Put("/data/semaphores.json", []byte(`{"type":"FeatureCollection","features":[]}`))
	f.reloadAll(t)

	assert.NotPanics(t, func() { f.ctrl.ClearHover("A") })
	assert.Zero(t, f.table.Len(), "hover state for a vanished feature does not leak")
	_, active := f.ctrl.Active()
	assert.False(t, active)
}

func TestConcurrentTransitions(t *testing.T) {
	f := newFixture(t)
	ids := []types.FeatureID{"A", "B", "L1", "7"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := ids[(n+j)%len(ids)]
				_ = f.ctrl.SetHover(id)
				if j%3 == 0 {
					f.ctrl.ClearHover(id)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, f.hoveredCount(), 1)
	f.ctrl.ClearActive()
	assert.Zero(t, f.table.Len())
}

func stylePtr(s style.Style) *style.Style { return &s }
