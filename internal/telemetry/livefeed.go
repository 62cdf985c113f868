package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/metrics"
)

const (
	defaultRedialDelay = 5 * time.Second
	defaultReadTimeout = 2 * time.Minute
	defaultMaxAge      = 5 * time.Minute
	maxMessageSize     = 64 * 1024
)

// LiveFeed subscribes to the meter's websocket feed and keeps the most
// recent reading. It redials after a fixed delay when the connection drops.
type LiveFeed struct {
	url         string
	dialer      *websocket.Dialer
	redialDelay time.Duration
	readTimeout time.Duration
	maxAge      time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu         sync.RWMutex
	latest     *Reading
	receivedAt time.Time
	connected  bool
}

// LiveFeedOption configures a LiveFeed.
type LiveFeedOption func(*LiveFeed)

// WithRedialDelay sets the pause between reconnect attempts.
func WithRedialDelay(d time.Duration) LiveFeedOption {
	return func(f *LiveFeed) {
		if d > 0 {
			f.redialDelay = d
		}
	}
}

// WithReadTimeout sets how long the feed may stay silent before the
// connection is considered dead.
func WithReadTimeout(d time.Duration) LiveFeedOption {
	return func(f *LiveFeed) {
		if d > 0 {
			f.readTimeout = d
		}
	}
}

// WithMaxAge sets how long after it was received a reading may still be
// offered as a sample.
func WithMaxAge(d time.Duration) LiveFeedOption {
	return func(f *LiveFeed) {
		if d > 0 {
			f.maxAge = d
		}
	}
}

// WithFeedLogger sets the logger.
func WithFeedLogger(l *zap.Logger) LiveFeedOption {
	return func(f *LiveFeed) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewLiveFeed returns a feed for the websocket at url. Nothing is dialed
// until Run is called.
func NewLiveFeed(url string, opts ...LiveFeedOption) *LiveFeed {
	f := &LiveFeed{
		url:         url,
		dialer:      websocket.DefaultDialer,
		redialDelay: defaultRedialDelay,
		readTimeout: defaultReadTimeout,
		maxAge:      defaultMaxAge,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run dials and reads until ctx is cancelled. It only returns ctx.Err().
func (f *LiveFeed) Run(ctx context.Context) error {
	for {
		if err := f.session(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("live feed disconnected", zap.String("url", f.url), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.redialDelay):
		}
	}
}

func (f *LiveFeed) session(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	f.setConnected(true)
	f.logger.Info("live feed connected", zap.String("url", f.url))
	defer f.setConnected(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})
	for {
		if err := conn.SetReadDeadline(time.Now().Add(f.readTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var r Reading
		if err := json.Unmarshal(msg, &r); err != nil {
			f.logger.Warn("live feed message dropped", zap.Error(err))
			continue
		}
		f.Observe(r)
	}
}

// Observe records r unless a newer reading is already held. Readings
// without a timestamp are stamped with the receive time.
func (f *LiveFeed) Observe(r Reading) bool {
	now := f.now()
	if r.Time.IsZero() {
		r.Time = Timestamp{now}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest != nil && r.Time.Before(f.latest.Time.Time) {
		return false
	}
	f.latest = &r
	f.receivedAt = now
	metrics.LiveFeedReadingsTotal.Inc()
	return true
}

// Latest returns the most recent reading, if any.
func (f *LiveFeed) Latest() (Reading, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return Reading{}, false
	}
	return *f.latest, true
}

// Connected reports whether a websocket session is currently open.
func (f *LiveFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

func (f *LiveFeed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
	if v {
		metrics.LiveFeedConnected.Set(1)
	} else {
		metrics.LiveFeedConnected.Set(0)
	}
}

// LatestConsumption implements Source with the most recent live reading.
// A reading received more than the max age ago is not offered.
func (f *LiveFeed) LatestConsumption(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	f.mu.RLock()
	latest, receivedAt := f.latest, f.receivedAt
	f.mu.RUnlock()
	if latest == nil {
		return Sample{}, fmt.Errorf("%w: live feed has no reading yet", ErrNoSample)
	}
	if age := f.now().Sub(receivedAt); age > f.maxAge {
		return Sample{}, fmt.Errorf("%w: live reading is %s old", ErrNoSample, age.Truncate(time.Second))
	}
	return SampleFromReading(*latest), nil
}
