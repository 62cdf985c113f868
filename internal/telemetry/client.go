package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/metrics"
)

// ErrUpstream is returned when the backend answers with a failure.
var ErrUpstream = errors.New("telemetry: upstream error")

// NewHTTPClient creates an HTTP client with optional TLS configuration.
// Set skipTLSVerify to true for backends with misconfigured certificate
// chains.
func NewHTTPClient(timeout time.Duration, skipTLSVerify bool) *http.Client {
	transport := &http.Transport{}

	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// DefaultHTTPClient returns a standard HTTP client with 30s timeout.
func DefaultHTTPClient() *http.Client {
	return NewHTTPClient(30*time.Second, false)
}

// Client talks to the telemetry backend's HTTP API.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
	logger   *zap.Logger
	now      func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithDevice scopes every request to one device.
func WithDevice(id string) ClientOption {
	return func(c *Client) {
		c.deviceID = id
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    DefaultHTTPClient(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TodayConsumption fetches GET /today-consumption.
func (c *Client) TodayConsumption(ctx context.Context) (*TodayConsumption, error) {
	var out TodayConsumption
	if err := c.getJSON(ctx, "/today-consumption", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WeekData fetches the per-day points of GET /main-chart/data.
func (c *Client) WeekData(ctx context.Context) ([]WeekPoint, error) {
	var out chartData
	if err := c.getJSON(ctx, "/main-chart/data", &out); err != nil {
		return nil, err
	}
	return out.Week, nil
}

// Devices lists the meters the backend reports on.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := c.getJSON(ctx, "/devices", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestConsumption implements Source using the today-consumption endpoint.
func (c *Client) LatestConsumption(ctx context.Context) (Sample, error) {
	tc, err := c.TodayConsumption(ctx)
	if err != nil {
		return Sample{}, err
	}
	s := SampleFromToday(*tc, c.now())
	if s.Empty() {
		return Sample{}, fmt.Errorf("%w: today-consumption has no cost, consumption or power", ErrNoSample)
	}
	return s, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveUpstream(path, started, err) }()

	target, err := WithParams(c.baseURL+path, map[string]string{"device": c.deviceID})
	if err != nil {
		return fmt.Errorf("telemetry: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("telemetry: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telemetry: read %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: GET %s returned status %d", ErrUpstream, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("telemetry: decode %s: %w", path, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "success=false"
		}
		return fmt.Errorf("%w: GET %s: %s", ErrUpstream, path, msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: GET %s: empty data", ErrUpstream, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("telemetry: decode %s data: %w", path, err)
	}
	c.logger.Debug("telemetry fetched", zap.String("path", path), zap.Duration("took", time.Since(started)))
	return nil
}
