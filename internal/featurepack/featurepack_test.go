package featurepack

import (
	"errors"
	"path/filepath"
	"testing"
)

const lineCollection = `{"type":"FeatureCollection","features":[{"type":"Feature","id":"L1","geometry":{"type":"LineString","coordinates":[[9.73,52.37],[9.74,52.38]]},"properties":{"name":"Main"}}]}`

func TestFeaturePack_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pack.sqlite")

	meta := Metadata{
		Name:        "Hannover signals",
		Attribution: "© OpenStreetMap contributors",
		Description: "Test pack",
		Version:     "1",
		Bounds:      [4]float64{9.7, 52.3, 9.9, 52.4},
	}

	w, err := Create(dbPath, meta)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if err := w.WriteCollection(Entry{Category: "line", Endpoint: "/data/line.json", FeatureCount: 1}, []byte(lineCollection)); err != nil {
		t.Fatalf("Failed to write collection: %v", err)
	}
	// Overwrite keeps a single row per category.
	if err := w.WriteCollection(Entry{Category: "line", Endpoint: "/data/line.json", FeatureCount: 1}, []byte(lineCollection)); err != nil {
		t.Fatalf("Failed to rewrite collection: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	r, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	data, err := r.ReadCollection("line")
	if err != nil {
		t.Fatalf("Failed to read collection: %v", err)
	}
	if string(data) != lineCollection {
		t.Errorf("collection mismatch: got %q", string(data))
	}

	entries, err := r.Entries()
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Category != "line" || entries[0].FeatureCount != 1 {
		t.Errorf("unexpected entries: %+v", entries)
	}

	got, err := r.Metadata()
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	if got != meta {
		t.Errorf("metadata mismatch: got %+v, want %+v", got, meta)
	}
}

func TestFeaturePack_MissingCollection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pack.sqlite")

	w, err := Create(dbPath, Metadata{Name: "empty"})
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	r, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	_, err = r.ReadCollection("point")
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestFeaturePack_OpenRejectsForeignDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.sqlite"))
	if err == nil {
		t.Fatal("expected error opening a database without collections table")
	}
}
