//go:build js && wasm
// +build js,wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/MeKo-Tech/trafficmap/internal/datasource"
	"github.com/MeKo-Tech/trafficmap/internal/geojson"
	"github.com/MeKo-Tech/trafficmap/internal/hover"
	"github.com/MeKo-Tech/trafficmap/internal/layer"
	"github.com/MeKo-Tech/trafficmap/internal/selection"
	"github.com/MeKo-Tech/trafficmap/internal/source"
	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// bridge holds the interaction core for the page. Collections are handed
// over from JS and kept in memory.
type bridge struct {
	docs    *source.MemoryFetcher
	catalog *style.Catalog
	layers  *layer.Set
	hover   *hover.Controller
	store   *selection.Store

	mu        sync.Mutex
	onRestyle js.Value
}

func endpoint(cat types.Category) string { return "wasm:" + string(cat) }

func newBridge() (*bridge, error) {
	b := &bridge{
		docs:      source.NewMemoryFetcher(),
		catalog:   style.DefaultCatalog(),
		store:     selection.NewStore(),
		onRestyle: js.Undefined(),
	}

	table := hover.NewTable()
	layers := make([]*layer.Layer, 0, len(types.Categories))
	for _, cat := range types.Categories {
		src := source.New(source.Config{Category: cat, Endpoint: endpoint(cat), Fetcher: b.docs})
		layers = append(layers, layer.New(src, b.catalog, table))
	}

	set, err := layer.NewSet(layers...)
	if err != nil {
		return nil, err
	}
	b.layers = set
	b.hover = hover.NewController(set, b.catalog, table, hover.WithRestyler(b))
	return b, nil
}

// Restyle forwards a style change to the registered JS callback as
// (category, id, styleJSON).
func (b *bridge) Restyle(key types.FeatureKey, s style.Style) {
	b.mu.Lock()
	fn := b.onRestyle
	b.mu.Unlock()
	if fn.Type() != js.TypeFunction {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	fn.Invoke(string(key.Category), string(key.ID), string(data))
}

func errorResult(err error) map[string]interface{} {
	return map[string]interface{}{"error": err.Error()}
}

func argString(args []js.Value, i int) string {
	if i >= len(args) || args[i].Type() != js.TypeString {
		return ""
	}
	return args[i].String()
}

// argID reads a feature id. OpenLayers reports numeric GeoJSON ids as JS
// numbers; they map to the same id the decoder gave the feature.
func argID(args []js.Value, i int) types.FeatureID {
	if i >= len(args) {
		return types.NoFeature
	}
	switch args[i].Type() {
	case js.TypeString:
		return types.FeatureID(args[i].String())
	case js.TypeNumber:
		id, _ := geojson.NormalizeID(args[i].Float())
		return id
	default:
		return types.NoFeature
	}
}

// load stores a GeoJSON document for a category and (re)loads its layer.
// It returns a Promise resolving to the layer status.
func (b *bridge) load(cat types.Category, doc []byte) interface{} {
	b.docs.Put(endpoint(cat), doc)
	l, ok := b.layers.Get(cat)
	if !ok {
		return errorResult(fmt.Errorf("no layer for %s", cat))
	}

	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve, reject := args[0], args[1]
		go func() {
			_, err := l.Source().Load(context.Background()).Wait(context.Background())
			status, _ := json.Marshal(l.Source().Status())
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(string(status))
		}()
		return nil
	})
	defer handler.Release()

	return js.Global().Get("Promise").New(handler)
}

// trafficmapLoad(category, geojsonString)
func (b *bridge) jsLoad(this js.Value, args []js.Value) interface{} {
	cat, err := types.ParseCategory(argString(args, 0))
	if err != nil {
		return errorResult(err)
	}
	return b.load(cat, []byte(argString(args, 1)))
}

// trafficmapLoadOverpass(category, overpassJSONString) converts an
// Overpass API response in the browser and loads it.
func (b *bridge) jsLoadOverpass(this js.Value, args []js.Value) interface{} {
	cat, err := types.ParseCategory(argString(args, 0))
	if err != nil {
		return errorResult(err)
	}
	result, err := datasource.UnmarshalOverpassJSON([]byte(argString(args, 1)))
	if err != nil {
		return errorResult(err)
	}
	doc, err := geojson.ToGeoJSONBytes(datasource.ExtractCategory(result, cat), nil)
	if err != nil {
		return errorResult(err)
	}
	return b.load(cat, doc)
}

func (b *bridge) activeResult() map[string]interface{} {
	key, ok := b.hover.Active()
	if !ok {
		return map[string]interface{}{"active": nil}
	}
	return map[string]interface{}{
		"active": map[string]interface{}{"category": string(key.Category), "id": string(key.ID)},
	}
}

// trafficmapSetHover(id[, category]) hovers id in category, or in the
// first layer holding it.
func (b *bridge) jsSetHover(this js.Value, args []js.Value) interface{} {
	id := argID(args, 0)
	var err error
	if name := argString(args, 1); name != "" {
		cat, perr := types.ParseCategory(name)
		if perr != nil {
			return errorResult(perr)
		}
		err = b.hover.SetHoverKey(types.FeatureKey{Category: cat, ID: id})
	} else {
		err = b.hover.SetHover(id)
	}
	if err != nil {
		return errorResult(err)
	}
	return b.activeResult()
}

// trafficmapClearHover([id]) clears id, or the active hover without one.
func (b *bridge) jsClearHover(this js.Value, args []js.Value) interface{} {
	if len(args) == 0 || args[0].IsUndefined() || args[0].IsNull() {
		b.hover.ClearActive()
	} else {
		b.hover.ClearHover(argID(args, 0))
	}
	return b.activeResult()
}

// trafficmapStyleFor(category, id) returns the style JSON a feature
// renders with right now.
func (b *bridge) jsStyleFor(this js.Value, args []js.Value) interface{} {
	cat, err := types.ParseCategory(argString(args, 0))
	if err != nil {
		return errorResult(err)
	}
	l, ok := b.layers.Get(cat)
	if !ok {
		return errorResult(fmt.Errorf("no layer for %s", cat))
	}
	data, err := json.Marshal(l.StyleFor(argID(args, 1)))
	if err != nil {
		return errorResult(err)
	}
	return string(data)
}

// trafficmapSelect(category, id) publishes the attributes of a feature;
// unknown features clear the selection.
func (b *bridge) jsSelect(this js.Value, args []js.Value) interface{} {
	cat, err := types.ParseCategory(argString(args, 0))
	if err != nil {
		return errorResult(err)
	}
	l, ok := b.layers.Get(cat)
	if !ok {
		return errorResult(fmt.Errorf("no layer for %s", cat))
	}
	f, ok := l.Lookup(argID(args, 1))
	if !ok {
		b.store.Clear()
		return map[string]interface{}{"selected": false}
	}
	b.store.SetFeature(f.Attributes())
	return map[string]interface{}{"selected": true}
}

// trafficmapClearSelection()
func (b *bridge) jsClearSelection(this js.Value, args []js.Value) interface{} {
	b.store.Clear()
	return nil
}

// trafficmapSelection() returns the current attributes as JSON ("null"
// when nothing is selected).
func (b *bridge) jsSelection(this js.Value, args []js.Value) interface{} {
	attrs, _ := b.store.Current()
	data, err := json.Marshal(attrs)
	if err != nil {
		return errorResult(err)
	}
	return string(data)
}

// trafficmapOnSelection(fn) calls fn(json) with the current selection and
// on every change. It returns a function that unsubscribes.
func (b *bridge) jsOnSelection(this js.Value, args []js.Value) interface{} {
	if len(args) == 0 || args[0].Type() != js.TypeFunction {
		return errorResult(fmt.Errorf("callback required"))
	}
	fn := args[0]

	updates, unsubscribe := b.store.Subscribe()
	go func() {
		for attrs := range updates {
			data, err := json.Marshal(attrs)
			if err != nil {
				continue
			}
			fn.Invoke(string(data))
		}
	}()

	var cancel js.Func
	cancel = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		unsubscribe()
		cancel.Release()
		return nil
	})
	return cancel
}

// trafficmapOnRestyle(fn) registers fn(category, id, styleJSON), called
// whenever hover changes the style of a feature.
func (b *bridge) jsOnRestyle(this js.Value, args []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(args) == 0 {
		b.onRestyle = js.Undefined()
		return nil
	}
	b.onRestyle = args[0]
	return nil
}

// trafficmapStyles() returns the style catalog as JSON.
func (b *bridge) jsStyles(this js.Value, args []js.Value) interface{} {
	data, err := json.Marshal(b.catalog.All())
	if err != nil {
		return errorResult(err)
	}
	return string(data)
}

func main() {
	b, err := newBridge()
	if err != nil {
		fmt.Println("trafficmap WASM module failed to start:", err)
		return
	}

	funcs := map[string]func(js.Value, []js.Value) interface{}{
		"trafficmapLoad":           b.jsLoad,
		"trafficmapLoadOverpass":   b.jsLoadOverpass,
		"trafficmapSetHover":       b.jsSetHover,
		"trafficmapClearHover":     b.jsClearHover,
		"trafficmapStyleFor":       b.jsStyleFor,
		"trafficmapStyles":         b.jsStyles,
		"trafficmapSelect":         b.jsSelect,
		"trafficmapClearSelection": b.jsClearSelection,
		"trafficmapSelection":      b.jsSelection,
		"trafficmapOnSelection":    b.jsOnSelection,
		"trafficmapOnRestyle":      b.jsOnRestyle,
	}
	for name, fn := range funcs {
		js.Global().Set(name, js.FuncOf(fn))
	}

	fmt.Println("trafficmap WASM module loaded")
	select {}
}
