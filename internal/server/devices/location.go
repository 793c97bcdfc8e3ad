package devices

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/logging"
)

const (
	Localhost       = "Localhost"
	UnknownLocation = "Unknown Location"

	DefaultGeoURL     = "http://ip-api.com/json"
	DefaultGeoTimeout = 5 * time.Second
)

// Locator resolves a client address to a display location.
type Locator interface {
	Locate(ctx context.Context, ip string) string
}

// IPAPILocator queries an ip-api.com compatible endpoint: GET {base}/{ip}.
type IPAPILocator struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  logging.Logger
}

func NewIPAPILocator(baseURL string, timeout time.Duration, logger logging.Logger) *IPAPILocator {
	if baseURL == "" {
		baseURL = DefaultGeoURL
	}
	if timeout <= 0 {
		timeout = DefaultGeoTimeout
	}
	return &IPAPILocator{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger.With("module", "geo_locator"),
	}
}

type ipAPIResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (l *IPAPILocator) Locate(ctx context.Context, ip string) string {
	if IsLocal(ip) {
		return Localhost
	}
	if net.ParseIP(ip) == nil {
		return UnknownLocation
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return UnknownLocation
	}
	resp, err := l.http.Do(req)
	if err != nil {
		l.logger.Warn(ctx, "geo lookup failed", "error", err)
		return UnknownLocation
	}
	defer resp.Body.Close()

	var body ipAPIResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil || body.Status != "success" {
		return UnknownLocation
	}

	var parts []string
	for _, p := range []string{body.City, body.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return UnknownLocation
	}
	return strings.Join(parts, ", ")
}

// IsLocal reports empty and loopback addresses.
func IsLocal(ip string) bool {
	if ip == "" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

// StaticLocator answers every lookup with the same location. Used when
// geo lookups are disabled.
type StaticLocator string

func (s StaticLocator) Locate(_ context.Context, ip string) string {
	if IsLocal(ip) {
		return Localhost
	}
	return string(s)
}
