// Package source loads per-category feature collections with an explicit
// two-phase lifecycle: construct without I/O, then Load.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/metrics"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

var (
	// ErrLoadFailure matches every *LoadError.
	ErrLoadFailure = errors.New("feature load failed")
	// ErrSuperseded resolves a load that was overtaken by a newer one.
	ErrSuperseded = errors.New("load superseded by a newer request")
)

// State is the lifecycle state of a Source.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadError reports an unreachable endpoint or a malformed payload.
type LoadError struct {
	Category types.Category
	Endpoint string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s features from %s: %v", e.Category, e.Endpoint, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoadFailure }

// Fetcher retrieves and decodes the collection behind an endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, category types.Category, endpoint string) ([]types.Feature, error)
}

// Config configures a Source.
type Config struct {
	Category types.Category
	Endpoint string
	Fetcher  Fetcher
	Logger   *slog.Logger
}

// Source holds the features of one category.
type Source struct {
	category types.Category
	endpoint string
	fetcher  Fetcher
	logger   *slog.Logger

	mu       sync.RWMutex
	state    State
	features []types.Feature
	index    map[types.FeatureID]int
	err      error
	gen      uint64
	loadedAt time.Time
}

// New creates an idle source. No I/O happens until Load.
func New(cfg Config) *Source {
	return &Source{
		category: cfg.Category,
		endpoint: cfg.Endpoint,
		fetcher:  cfg.Fetcher,
		logger:   cfg.Logger,
	}
}

// Load starts fetching the collection in the background. A newer Load
// supersedes any load still in flight.
func (s *Source) Load(ctx context.Context) *Pending {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.mu.Unlock()

	p := newPending()
	go func() {
		start := time.Now()
		features, err := s.fetcher.Fetch(ctx, s.category, s.endpoint)
		features, err = s.finish(gen, features, err, time.Since(start))
		p.resolve(features, err)
	}()
	return p
}

func (s *Source) finish(gen uint64, features []types.Feature, fetchErr error, elapsed time.Duration) ([]types.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.log().Debug("discarding superseded load", "category", s.category, "endpoint", s.endpoint)
		return nil, ErrSuperseded
	}

	cat := string(s.category)
	metrics.SourceLoadDurationMs.WithLabelValues(cat).Observe(float64(elapsed.Milliseconds()))

	if fetchErr != nil {
		s.state = StateFailed
		s.features = nil
		s.index = nil
		s.err = &LoadError{Category: s.category, Endpoint: s.endpoint, Err: fetchErr}
		metrics.SourceLoadsTotal.WithLabelValues(cat, "failure").Inc()
		metrics.SourceFeatures.WithLabelValues(cat).Set(0)
		s.log().Warn("feature load failed", "category", s.category, "endpoint", s.endpoint, "error", fetchErr)
		return nil, s.err
	}

	index := make(map[types.FeatureID]int, len(features))
	for i, f := range features {
		index[f.ID] = i
	}

	s.state = StateLoaded
	s.features = features
	s.index = index
	s.err = nil
	s.loadedAt = time.Now()
	metrics.SourceLoadsTotal.WithLabelValues(cat, "success").Inc()
	metrics.SourceFeatures.WithLabelValues(cat).Set(float64(len(features)))
	s.log().Info("features loaded", "category", s.category, "endpoint", s.endpoint,
		"count", len(features), "elapsed", elapsed)

	return s.copyFeatures(), nil
}

// Features returns a copy of the loaded features; empty before the first
// successful load and after a failure.
func (s *Source) Features() []types.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyFeatures()
}

func (s *Source) copyFeatures() []types.Feature {
	out := make([]types.Feature, len(s.features))
	copy(out, s.features)
	return out
}

// Lookup finds a loaded feature by id.
func (s *Source) Lookup(id types.FeatureID) (types.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return types.Feature{}, false
	}
	return s.features[i], true
}

// Status is a snapshot of the source lifecycle.
type Status struct {
	Category types.Category `json:"category"`
	Endpoint string         `json:"endpoint"`
	State    string         `json:"state"`
	Count    int            `json:"count"`
	Error    string         `json:"error,omitempty"`
	LoadedAt *time.Time     `json:"loaded_at,omitempty"`
}

// Status returns the current lifecycle snapshot.
func (s *Source) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Category: s.category,
		Endpoint: s.endpoint,
		State:    s.state.String(),
		Count:    len(s.features),
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	if !s.loadedAt.IsZero() {
		t := s.loadedAt
		st.LoadedAt = &t
	}
	return st
}

// State returns the lifecycle state.
func (s *Source) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the last load error, if the source is in the failed state.
func (s *Source) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Category returns the category of the source.
func (s *Source) Category() types.Category { return s.category }

// Endpoint returns the endpoint the source loads from.
func (s *Source) Endpoint() string { return s.endpoint }

func (s *Source) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Pending is the result of an in-flight Load.
type Pending struct {
	done     chan struct{}
	features []types.Feature
	err      error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(features []types.Feature, err error) {
	p.features = features
	p.err = err
	close(p.done)
}

// Done is closed once the load has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the load finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) ([]types.Feature, error) {
	select {
	case <-p.done:
		return p.features, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
