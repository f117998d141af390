package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "roomsign/internal/log"
)

// Source is a single schedule feed endpoint.
type Source struct {
	// ID is used for logging only.
	ID string
	// URL is the feed endpoint.
	URL string
}

// FetchResult contains the body of a feed fetch.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // true if the body came from the disk cache
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	// CacheDir holds per-URL bodies and validators. Empty disables the
	// disk cache.
	CacheDir string

	// Timeout bounds a single request. Zero means 30 seconds.
	Timeout time.Duration

	// StaleFallback serves the cached body when the network request fails.
	StaleFallback bool

	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Fetcher retrieves feed documents with ETag / Last-Modified revalidation
// against a disk cache.
type Fetcher struct {
	client        *http.Client
	cacheDir      string
	staleFallback bool
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{
		client:        client,
		cacheDir:      opts.CacheDir,
		staleFallback: opts.StaleFallback,
	}
}

// BuildURL fills the {client} and {show} placeholders of a feed URL
// template (veyepar: .../main/C/{client}/S/{show}.json).
func BuildURL(template, client, show string) string {
	r := strings.NewReplacer(
		"{client}", url.PathEscape(client),
		"{show}", url.PathEscape(show),
	)
	return r.Replace(template)
}

// Fetch retrieves src. Transport failures and non-2xx statuses wrap
// ErrNetwork unless a stale cached body may be served instead.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, fmt.Errorf("%w: source URL is empty", ErrNetwork)
	}

	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(src.URL)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			appLog.Error("feed cache dir unavailable", err, "path", cachePath)
			cachePath = ""
		} else {
			meta, _ = loadCacheMeta(cachePath)
			cachedBody, _ = os.ReadFile(filepath.Join(cachePath, "body"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("feed fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fallback(src, cachedBody, fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, fmt.Errorf("%w: 304 Not Modified but no cached body", ErrNetwork)
		}
		appLog.Info("feed not modified; using cache", "id", src.ID)
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return f.fallback(src, cachedBody, fmt.Errorf("%w: read body: %v", ErrNetwork, err))
		}
		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          src.URL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(cachePath, newMeta, body); err != nil {
				// The fresh body is still good.
				appLog.Error("feed cache save failed", err, "id", src.ID)
			}
		}
		appLog.Info("feed fetch success", "id", src.ID, "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	default:
		return f.fallback(src, cachedBody, fmt.Errorf("%w: HTTP %s", ErrNetwork, resp.Status))
	}
}

func (f *Fetcher) fallback(src Source, cachedBody []byte, err error) (FetchResult, error) {
	if f.staleFallback && len(cachedBody) > 0 {
		appLog.Error("feed fetch failed, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	}
	return FetchResult{}, err
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host, since feed URLs may embed
// client identifiers or tokens.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "feed://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}

// Load fetches src and decodes it with the given schema.
func Load(ctx context.Context, f *Fetcher, src Source, kind SchemaKind, opts DecodeOptions) (*Schedule, error) {
	res, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	s, err := Decode(res.Body, kind, opts)
	if err != nil {
		if res.FromCache {
			appLog.Warn("cached feed body did not decode", "id", src.ID)
		}
		return nil, err
	}
	return s, nil
}
