package featurepack

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// Writer writes collections to a feature pack.
type Writer struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Create opens (or creates) a feature pack for writing and replaces its metadata.
func Create(path string, metadata Metadata) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := insertMetadata(db, metadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to insert metadata: %w", err)
	}

	return &Writer{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS collections (
			category TEXT NOT NULL PRIMARY KEY,
			endpoint TEXT NOT NULL,
			feature_count INTEGER NOT NULL,
			data BLOB NOT NULL
		);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func insertMetadata(db *sql.DB, meta Metadata) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	for key, value := range meta.ToMap() {
		if _, err := tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}

	return tx.Commit()
}

// WriteCollection stores the GeoJSON document of one category, replacing any
// previous one. The document is gzip-compressed before storage.
func (w *Writer) WriteCollection(entry Entry, geojson []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	compressed, err := gzipCompress(geojson)
	if err != nil {
		return fmt.Errorf("failed to compress collection %s: %w", entry.Category, err)
	}

	_, err = w.db.Exec(
		"INSERT OR REPLACE INTO collections (category, endpoint, feature_count, data) VALUES (?, ?, ?, ?)",
		entry.Category, entry.Endpoint, entry.FeatureCount, compressed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert collection %s: %w", entry.Category, err)
	}

	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// gzipCompress compresses data with gzip.
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}

	if err := gw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
