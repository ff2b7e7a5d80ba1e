package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Geocoder resolves a coordinate to a human-readable address.
type Geocoder interface {
	Reverse(ctx context.Context, p Point) (string, error)
}

// CoordinateGeocoder "resolves" a point to its formatted coordinates.
type CoordinateGeocoder struct{}

func (CoordinateGeocoder) Reverse(_ context.Context, p Point) (string, error) {
	return FormatCoords(p), nil
}

// NominatimGeocoder calls a Nominatim-compatible /reverse endpoint.
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
}

// NewNominatim creates a geocoder with a short timeout; lookups are best effort.
func NewNominatim(baseURL, userAgent string) *NominatimGeocoder {
	return &NominatimGeocoder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		HTTP:      &http.Client{Timeout: 3 * time.Second},
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (g *NominatimGeocoder) Reverse(ctx context.Context, p Point) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Longitude, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("reverse geocode returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reverse geocode: %w", err)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	if out.DisplayName == "" {
		return "", errors.New("reverse geocode returned no address")
	}
	return out.DisplayName, nil
}

// CachedGeocoder memoizes another Geocoder, keyed on coordinates rounded to four decimals (~11 m).
// Failures are not cached.
type CachedGeocoder struct {
	next  Geocoder
	cache *lru.Cache[string, string]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next Geocoder, size int) (*CachedGeocoder, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &CachedGeocoder{next: next, cache: cache}, nil
}

func (c *CachedGeocoder) Reverse(ctx context.Context, p Point) (string, error) {
	key := FormatCoords(p)
	if addr, ok := c.cache.Get(key); ok {
		return addr, nil
	}
	addr, err := c.next.Reverse(ctx, p)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, addr)
	return addr, nil
}

// Len reports the number of cached addresses.
func (c *CachedGeocoder) Len() int { return c.cache.Len() }
