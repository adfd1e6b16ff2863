package sylvac

import (
	"log/slog"
	"time"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/protocol"
)

// Option configures Caliper behavior.
type Option func(*config)

type config struct {
	namePattern          string
	scanTimeout          time.Duration
	autoReconnect        bool
	reconnectInterval    time.Duration
	maxReconnectFailures uint32
	readingBuffer        int
	logger               *slog.Logger
}

func defaultConfig() *config {
	return &config{
		namePattern:          protocol.DefaultNamePattern,
		scanTimeout:          5 * time.Second,
		autoReconnect:        false,
		reconnectInterval:    2 * time.Second,
		maxReconnectFailures: 5,
		readingBuffer:        16,
		logger:               slog.New(slog.DiscardHandler),
	}
}

func newConfig(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithNamePattern sets the substring matched against advertised device names.
// The default is "SY289".
func WithNamePattern(pattern string) Option {
	return func(c *config) {
		c.namePattern = pattern
	}
}

// WithScanTimeout sets how long Scan and ConnectFirst listen for advertisements.
func WithScanTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.scanTimeout = d
		}
	}
}

// WithAutoReconnect enables automatic reconnection on link loss.
// When enabled, the Caliper keeps retrying until the reconnect circuit opens.
func WithAutoReconnect(enabled bool) Option {
	return func(c *config) {
		c.autoReconnect = enabled
	}
}

// WithReconnectInterval sets the minimum spacing between reconnect attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.reconnectInterval = d
		}
	}
}

// WithMaxReconnectFailures sets the number of consecutive failed attempts
// after which reconnection gives up.
func WithMaxReconnectFailures(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.maxReconnectFailures = n
		}
	}
}

// WithReadingBuffer sets the capacity of the Readings channel.
// When the buffer is full the oldest reading is dropped.
func WithReadingBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.readingBuffer = n
		}
	}
}

// WithLogger sets the logger used for diagnostics. Logging is discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
