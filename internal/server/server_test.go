package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/interaction"
	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/selection"
	"github.com/MeKo-Tech/trafficmap/internal/source"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/surface"
	"github.com/MeKo-Tech/trafficmap/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointsDoc = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":"A","geometry":{"type":"Point","coordinates":[9.735,52.374]},"properties":{"name":"Intersection 1"}},
	{"type":"Feature","id":"B","geometry":{"type":"Point","coordinates":[9.740,52.376]},"properties":{"name":"Intersection 2"}}]}`

const linesDoc = `{"type":"FeatureCollection","features":[
	{"type":"Feature","id":"L1","geometry":{"type":"LineString","coordinates":[[9.730,52.370],[9.745,52.370]]},"properties":{"highway":"primary"}}]}`

type testEnv struct {
	mem     *source.MemoryFetcher
	handler http.Handler
	store   *selection.Store
	ctrl    *hover.Controller
	dataDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := source.NewMemoryFetcher()
	mem.Put("/data/semaphores.json", []byte(pointsDoc))
	mem.Put("/data/line.json", []byte(linesDoc))

	catalog := style.DefaultCatalog()
	table := hover.NewTable()
	points := layer.New(source.New(source.Config{Category: types.CategoryPoint, Endpoint: "/data/semaphores.json", Fetcher: mem}), catalog, table)
	lines := layer.New(source.New(source.Config{Category: types.CategoryLine, Endpoint: "/data/line.json", Fetcher: mem}), catalog, table)
	polys := layer.New(source.New(source.Config{Category: types.CategoryPolygon, Endpoint: "/data/road_cros.json", Fetcher: mem}), catalog, table)

	set, err := layer.NewSet(points, lines, polys)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pending := set.LoadAll(ctx)
	_, err = pending[types.CategoryPoint].Wait(ctx)
	require.NoError(t, err)
	_, err = pending[types.CategoryLine].Wait(ctx)
	require.NoError(t, err)
	_, err = pending[types.CategoryPolygon].Wait(ctx)
	require.ErrorIs(t, err, source.ErrLoadFailure)

	surf := surface.NewMemory(surface.Config{})
	surf.AddLayer(polys)
	surf.AddLayer(lines)
	surf.AddLayer(points)

	ctrl := hover.NewController(set, catalog, table, hover.WithRestyler(surf))
	store := selection.NewStore()

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "line.json"), []byte(linesDoc), 0o644))

	srv := New(Config{
		Layers:    set,
		Catalog:   catalog,
		Hover:     ctrl,
		Selection: store,
		Interaction: interaction.New(interaction.Config{
			Surface: surf, Layers: set, Hover: ctrl, Selection: store, Tolerance: 0.0005,
		}),
		Surface:   surf,
		DataDir:   dataDir,
		KeepAlive: time.Hour,
	})

	return &testEnv{mem: mem, handler: srv.Handler(), store: store, ctrl: ctrl, dataDir: dataDir}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthAndCORS(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = e.do(t, http.MethodOptions, "/api/hover", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trafficmap_source_loads_total")
}

func TestStyles(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/styles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var styles []map[string]interface{}
	decodeBody(t, rec, &styles)
	require.Len(t, styles, 4)

	byName := map[string]map[string]interface{}{}
	for _, s := range styles {
		byName[s["name"].(string)] = s
	}
	hoverStyle := byName["hover"]
	require.NotNil(t, hoverStyle)
	assert.Equal(t, 7.0, hoverStyle["radius"])
	assert.Equal(t, "#f59e0b", hoverStyle["marker"].(map[string]interface{})["fillColor"])
}

func TestLayersStatus(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/layers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var statuses []source.Status
	decodeBody(t, rec, &statuses)
	require.Len(t, statuses, 3)
	assert.Equal(t, "loaded", statuses[0].State)
	assert.Equal(t, 2, statuses[0].Count)
	assert.Equal(t, "failed", statuses[2].State)
	assert.NotEmpty(t, statuses[2].Error, "load failures are surfaced to the host")
}

func TestLayerFeaturesCarryResolvedStyle(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.ctrl.SetHover("A"))

	rec := e.do(t, http.MethodGet, "/api/layers/semaphores", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Features []struct {
			ID         string                 `json:"id"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	decodeBody(t, rec, &fc)
	require.Len(t, fc.Features, 2)

	styles := map[string]string{}
	for _, f := range fc.Features {
		styles[f.ID] = f.Properties["_style"].(map[string]interface{})["name"].(string)
	}
	assert.Equal(t, map[string]string{"A": "hover", "B": "point"}, styles)

	rec = e.do(t, http.MethodGet, "/api/layers/rivers", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReload(t *testing.T) {
	e := newTestEnv(t)

	e.mem.Put("/data/road_cros.json", []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"X","geometry":{"type":"Polygon","coordinates":[[[9.73,52.37],[9.74,52.37],[9.74,52.38],[9.73,52.37]]]},"properties":{}}]}`))

	rec := e.do(t, http.MethodPost, "/api/layers/polygon/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var status source.Status
	decodeBody(t, rec, &status)
	assert.Equal(t, "loaded", status.State)
	assert.Equal(t, 1, status.Count)

	e.mem.Put("/data/line.json", []byte("{broken"))
	rec = e.do(t, http.MethodPost, "/api/layers/line/reload", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	decodeBody(t, rec, &status)
	assert.Equal(t, "failed", status.State)
	assert.Zero(t, status.Count)
}

func TestHoverEndpoints(t *testing.T) {
	e := newTestEnv(t)

	var resp hoverResponse
	rec := e.do(t, http.MethodPost, "/api/hover", `{"id":"A"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Active)
	assert.Equal(t, types.FeatureKey{Category: types.CategoryPoint, ID: "A"}, *resp.Active)

	rec = e.do(t, http.MethodPost, "/api/hover", `{"id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/hover", `{"lon":9.740,"lat":52.376}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Active)
	assert.Equal(t, types.FeatureID("B"), resp.Active.ID)

	rec = e.do(t, http.MethodDelete, "/api/hover?id=A", "")
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Active, "clearing a stale id leaves the active hover alone")

	rec = e.do(t, http.MethodDelete, "/api/hover", "")
	resp = hoverResponse{}
	decodeBody(t, rec, &resp)
	assert.Nil(t, resp.Active)

	rec = e.do(t, http.MethodPost, "/api/hover", `{"category":"line","id":"L1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Active)
	assert.Equal(t, types.FeatureKey{Category: types.CategoryLine, ID: "L1"}, *resp.Active)

	rec = e.do(t, http.MethodPost, "/api/hover", `{"category":"line","id":"A"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "A lives in the point layer only")
	rec = e.do(t, http.MethodPost, "/api/hover", `{"category":"river","id":"A"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/hover", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/hover", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionEndpoints(t *testing.T) {
	e := newTestEnv(t)

	var resp selectionResponse
	rec := e.do(t, http.MethodPost, "/api/selection", `{"category":"point","id":"B"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Selected)
	assert.Equal(t, "Intersection 2", resp.Attributes["name"])

	rec = e.do(t, http.MethodPost, "/api/selection", `{"id":"L1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Equal(t, "primary", resp.Attributes["highway"])

	rec = e.do(t, http.MethodPost, "/api/selection", `{"attributes":{"name":"X"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/selection", "")
	resp = selectionResponse{}
	decodeBody(t, rec, &resp)
	assert.Equal(t, selection.Attributes{"name": "X"}, resp.Attributes)

	rec = e.do(t, http.MethodPost, "/api/selection", `{"lon":9.735,"lat":52.374}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Intersection 1", resp.Attributes["name"])

	rec = e.do(t, http.MethodDelete, "/api/selection", "")
	resp = selectionResponse{}
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Selected)
	assert.Nil(t, resp.Attributes)

	rec = e.do(t, http.MethodPost, "/api/selection", `{"category":"point","id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/selection", `{"category":"bogus","id":"A"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionEvents(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/selection/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextData := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}

	assert.Equal(t, "null", nextData(), "current value is sent first")

	e.store.SetFeature(map[string]interface{}{"name": "X"})
	assert.JSONEq(t, `{"name":"X"}`, nextData())

	e.store.Clear()
	assert.Equal(t, "null", nextData())
}

func TestTiles(t *testing.T) {
	e := newTestEnv(t)

	mt := maptile.At(orb.Point{9.735, 52.374}, 14)
	rec := e.do(t, http.MethodGet, fmt.Sprintf("/tiles/z14_x%d_y%d.png", mt.X, mt.Y), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	for _, p := range []string{"/tiles/z14_x1_y2.jpg", "/tiles/bogus.png", "/tiles/z1_x9_y9.png"} {
		rec = e.do(t, http.MethodGet, p, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
}

func TestParseTilePath(t *testing.T) {
	coords, ok := parseTilePath("/tiles/z13_x4317_y2692.png")
	require.True(t, ok)
	assert.Equal(t, "z13_x4317_y2692", coords.String())

	_, ok = parseTilePath("/demo/z5_x1_y2.png")
	assert.False(t, ok)
}

func TestStaticData(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/data/line.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, linesDoc, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/data/missing.json", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
