package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/trafficmap/internal/geojson"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// MaxPayloadBytes caps the size of a fetched collection.
const MaxPayloadBytes = 64 << 20

// ErrPayloadTooLarge is the cause of a load whose body exceeds the limit.
var ErrPayloadTooLarge = errors.New("payload too large")

// HTTPFetcher GETs GeoJSON collections. Relative endpoints are resolved
// against BaseURL.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
	// MaxBytes caps the response body; zero means MaxPayloadBytes.
	MaxBytes int64
}

// NewHTTPFetcher creates an HTTP fetcher with a per-request timeout.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		Client:  &http.Client{Timeout: timeout},
		BaseURL: baseURL,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, category types.Category, endpoint string) ([]types.Feature, error) {
	u, err := f.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = MaxPayloadBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrPayloadTooLarge, limit)
	}

	return geojson.Decode(category, data)
}

func (f *HTTPFetcher) resolve(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() || f.BaseURL == "" {
		return ref.String(), nil
	}
	base, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", f.BaseURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// FileFetcher reads collections from disk. Endpoints are site-relative
// paths ("/data/line.json") resolved under Root, or "file://" URLs.
type FileFetcher struct {
	Root string
}

func (f *FileFetcher) Fetch(ctx context.Context, category types.Category, endpoint string) ([]types.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}

	return geojson.Decode(category, data)
}

func (f *FileFetcher) path(endpoint string) string {
	return resolvePath(f.Root, endpoint)
}

func resolvePath(root, endpoint string) string {
	if strings.HasPrefix(endpoint, "file://") {
		return filepath.FromSlash(strings.TrimPrefix(endpoint, "file://"))
	}
	if root == "" {
		root = "."
	}
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(endpoint, "/")))
}

// Router dispatches an endpoint to the fetcher that understands it:
// "featurepack:" endpoints to Pack, http(s) URLs to HTTP, ".shp" paths to
// Shapefile, relative paths to HTTP when it has a base URL and to File
// otherwise.
type Router struct {
	HTTP      *HTTPFetcher
	File      *FileFetcher
	Shapefile *ShapefileFetcher
	Pack      *PackFetcher
}

func (r *Router) Fetch(ctx context.Context, category types.Category, endpoint string) ([]types.Feature, error) {
	fetcher, err := r.pick(endpoint)
	if err != nil {
		return nil, err
	}
	return fetcher.Fetch(ctx, category, endpoint)
}

func (r *Router) pick(endpoint string) (Fetcher, error) {
	lower := strings.ToLower(endpoint)
	switch {
	case strings.HasPrefix(lower, PackScheme):
		if r.Pack != nil {
			return r.Pack, nil
		}
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if r.HTTP != nil {
			return r.HTTP, nil
		}
	case strings.HasSuffix(lower, ".shp"):
		if r.Shapefile != nil {
			return r.Shapefile, nil
		}
	case r.HTTP != nil && r.HTTP.BaseURL != "":
		return r.HTTP, nil
	default:
		if r.File != nil {
			return r.File, nil
		}
	}
	return nil, fmt.Errorf("no fetcher configured for endpoint %q", endpoint)
}
