package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/zombinator/internal/config"
	"github.com/harun/zombinator/internal/observability"
	"github.com/harun/zombinator/internal/tracing"
	"github.com/harun/zombinator/pkg/credential"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tracerName   = "zombinator.maps"
	geocodePath  = "/search/address/json"
	routePath    = "/route/directions/json"
	maxBodyBytes = 4 << 20
)

// Config configures a Client.
type Config struct {
	SubscriptionKey string
	BaseURL         string
	APIVersion      string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Logger          *zerolog.Logger
}

// ConfigFromSettings maps the maps configuration section onto Config.
func ConfigFromSettings(cfg config.MapsConfig) Config {
	return Config{
		SubscriptionKey: cfg.SubscriptionKey,
		BaseURL:         cfg.BaseURL,
		APIVersion:      cfg.APIVersion,
		Timeout:         cfg.Timeout,
	}
}

// Coordinates is a geocoded position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%g,%g", c.Lat, c.Lon)
}

// Client calls Azure Maps with a subscription key.
type Client struct {
	key        string
	baseURL    string
	apiVersion string
	http       *http.Client
	logger     zerolog.Logger
}

// New creates a client. A missing subscription key is a configuration error.
func New(cfg Config) (*Client, error) {
	observability.EnsureRegistered()

	if strings.TrimSpace(cfg.SubscriptionKey) == "" {
		return nil, &credential.ConfigurationError{Op: "maps.New", Reason: "azure maps subscription key is not configured"}
	}

	defaults := config.DefaultConfig().Maps
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaults.APIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := log.With().Str("component", "maps").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		key:        cfg.SubscriptionKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		http:       httpClient,
		logger:     logger,
	}, nil
}

// Geocode resolves an address to the coordinates of its best match.
func (c *Client) Geocode(ctx context.Context, address string) (Coordinates, error) {
	body, err := c.get(ctx, "geocode", geocodePath, url.Values{"query": {address}})
	if err != nil {
		return Coordinates{}, err
	}

	pos := gjson.GetBytes(body, "results.0.position")
	if !pos.Exists() {
		return Coordinates{}, fmt.Errorf("geocode %q: %w", address, ErrNoResults)
	}
	lat, lon := pos.Get("lat"), pos.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		return Coordinates{}, fmt.Errorf("geocode %q: invalid position data in response", address)
	}

	return Coordinates{Lat: lat.Float(), Lon: lon.Float()}, nil
}

// Route returns the raw route directions JSON between two positions.
func (c *Client) Route(ctx context.Context, from, to Coordinates) (json.RawMessage, error) {
	body, err := c.get(ctx, "route", routePath, url.Values{
		"query":     {from.String() + ":" + to.String()},
		"routeType": {"fastest"},
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Directions geocodes origin and destination and returns the provider's
// route JSON unmodified.
func (c *Client) Directions(ctx context.Context, origin, destination string) (json.RawMessage, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "maps.directions")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	var from, to Coordinates
	if from, err = c.Geocode(ctx, origin); err != nil {
		return nil, err
	}
	if to, err = c.Geocode(ctx, destination); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	raw, err = c.Route(ctx, from, to)
	return raw, err
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "maps."+op, attribute.String("maps.path", path))
	start := time.Now()

	body, err := c.do(ctx, op, path, query)

	observability.RecordMapsRequest(op, time.Since(start), err == nil)
	tracing.EndSpan(span, err)
	if err != nil {
		l := tracing.LoggerFromContext(ctx, c.logger)
		l.Warn().Err(err).Str("op", op).Msg("Azure Maps request failed")
	}
	return body, err
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	query.Set("api-version", c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("subscription-key", c.key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%s: response larger than %d bytes", op, maxBodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
