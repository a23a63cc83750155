package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/trafficmap/internal/geojson"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// MemoryFetcher serves GeoJSON documents held in memory, keyed by endpoint.
// Hosts that fetch on their own (e.g. a browser) hand the payload over here.
type MemoryFetcher struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryFetcher creates an empty in-memory fetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{docs: make(map[string][]byte)}
}

// Put stores the document served for endpoint.
func (m *MemoryFetcher) Put(endpoint string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[endpoint] = data
}

func (m *MemoryFetcher) Fetch(ctx context.Context, category types.Category, endpoint string) ([]types.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.docs[endpoint]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no document for %s", endpoint)
	}

	return geojson.Decode(category, data)
}
