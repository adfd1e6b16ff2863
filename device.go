package sylvac

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/ble"
)

// Device represents a discovered caliper.
// Devices are returned by the Scan function and can be passed to Connect.
type Device struct {
	Name    string // Advertised name (e.g., "SY289 1234")
	Address string // MAC address on Linux/Windows, UUID on macOS
	RSSI    int16  // Signal strength in dBm

	result  ble.ScanResult
	scanned bool
}

// conn is the subset of the BLE client a Caliper drives.
type conn interface {
	Connect(ctx context.Context, address string) error
	ConnectToResult(ctx context.Context, result ble.ScanResult) error
	Disconnect() error
	IsConnected() bool
	DeviceName() string
	DeviceAddress() string
	SetNotificationCallback(cb func([]byte))
	SetDisconnectCallback(cb func())
}

// Caliper represents a connected SY289 caliper.
// It decodes measurement notifications into Readings and exposes them both
// through callbacks and through the Readings channel.
//
// Create a Caliper using Connect or ConnectFirst:
//
//	caliper, err := sylvac.ConnectFirst(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer caliper.Close()
//
//	caliper.OnReading(func(r sylvac.Reading) {
//	    fmt.Printf("Valor en tiempo real: %.3f mm\n", r.Value)
//	})
type Caliper struct {
	conn   conn
	device Device
	config *config
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	readings     chan Reading
	breaker      *gobreaker.CircuitBreaker[struct{}]
	reconnecting atomic.Bool

	mu        sync.RWMutex
	latest    Reading
	hasLatest bool
	closed    bool

	// Callbacks
	onRaw         func([]byte)
	onReading     func(Reading)
	onDecodeError func(error)
	onDisconnect  func(error)
	onReconnect   func()
}

// Scan discovers nearby calipers whose advertised name matches the configured
// pattern. Returns all devices found within the scan timeout.
//
//	devices, err := sylvac.Scan(ctx, sylvac.WithScanTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Printf("Found: %s (RSSI: %d)\n", d.Name, d.RSSI)
//	}
func Scan(ctx context.Context, opts ...Option) ([]Device, error) {
	cfg := newConfig(opts)

	client, err := ble.NewClient()
	if err != nil {
		return nil, err
	}
	defer client.Disconnect()

	results, err := client.Scan(ctx, cfg.scanTimeout, cfg.namePattern)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(results))
	for i, r := range results {
		devices[i] = deviceFromResult(r)
	}

	return devices, nil
}

func deviceFromResult(r ble.ScanResult) Device {
	return Device{
		Name:    r.Name,
		Address: r.Address,
		RSSI:    r.RSSI,
		result:  r,
		scanned: true,
	}
}

// Connect connects to a specific caliper. A Device built by hand with only
// an Address is located by scanning before connecting.
func Connect(ctx context.Context, device Device, opts ...Option) (*Caliper, error) {
	cfg := newConfig(opts)

	client, err := ble.NewClient()
	if err != nil {
		return nil, err
	}

	c := newCaliper(client, device, cfg)
	if err := c.connect(ctx); err != nil {
		c.cancel()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.log.Info("caliper connected", "name", c.DeviceName(), "address", c.DeviceAddress())
	return c, nil
}

// ConnectFirst scans and connects to the first caliper found.
// It returns ErrDeviceNotFound when no advertised name matches.
func ConnectFirst(ctx context.Context, opts ...Option) (*Caliper, error) {
	devices, err := Scan(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	return Connect(ctx, devices[0], opts...)
}

func newCaliper(cn conn, device Device, cfg *config) *Caliper {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Caliper{
		conn:     cn,
		device:   device,
		config:   cfg,
		log:      cfg.logger.With("component", "caliper"),
		ctx:      ctx,
		cancel:   cancel,
		readings: make(chan Reading, cfg.readingBuffer),
	}
	c.breaker = newReconnectBreaker(c)

	// Callbacks must be in place before notifications are enabled.
	cn.SetNotificationCallback(c.handleNotification)
	cn.SetDisconnectCallback(c.handleLinkLoss)

	return c
}

func (c *Caliper) connect(ctx context.Context) error {
	if c.device.scanned {
		return c.conn.ConnectToResult(ctx, c.device.result)
	}
	return c.conn.Connect(ctx, c.device.Address)
}

// Close disconnects from the caliper and closes the Readings channel.
func (c *Caliper) Close() error {
	c.cancel()
	c.markClosed()
	return c.conn.Disconnect()
}

// IsConnected returns true if the link to the caliper is up.
func (c *Caliper) IsConnected() bool {
	return c.conn.IsConnected()
}

// DeviceName returns the connected device name.
func (c *Caliper) DeviceName() string {
	if name := c.conn.DeviceName(); name != "" {
		return name
	}
	return c.device.Name
}

// DeviceAddress returns the connected device address.
func (c *Caliper) DeviceAddress() string {
	if addr := c.conn.DeviceAddress(); addr != "" {
		return addr
	}
	return c.device.Address
}

// Readings returns a channel of decoded readings. The channel is closed when
// the caliper is closed or the link is lost for good. When the consumer falls
// behind, the oldest buffered reading is dropped.
func (c *Caliper) Readings() <-chan Reading {
	return c.readings
}

// Latest returns the most recent reading, if any has arrived.
func (c *Caliper) Latest() (Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.hasLatest
}

// Event callbacks

// OnReading sets a callback that fires for every decoded notification.
func (c *Caliper) OnReading(cb func(Reading)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReading = cb
}

// OnNotification sets a callback that receives every raw notification
// payload before it is decoded. The slice must not be retained.
func (c *Caliper) OnNotification(cb func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRaw = cb
}

// OnDecodeError sets a callback for notifications that could not be decoded.
func (c *Caliper) OnDecodeError(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDecodeError = cb
}

// OnDisconnect sets a callback for a final disconnection: link loss without
// auto-reconnect (ErrConnectionLost) or reconnection giving up
// (ErrReconnectFailed).
func (c *Caliper) OnDisconnect(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

// OnReconnect sets a callback that fires after a successful reconnection.
func (c *Caliper) OnReconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = cb
}

// Internal notification handling

func (c *Caliper) handleNotification(data []byte) {
	c.mu.RLock()
	raw := c.onRaw
	c.mu.RUnlock()
	if raw != nil {
		raw(data)
	}

	r, err := DecodeReading(data, time.Now())
	if err != nil {
		c.log.Debug("dropping notification", "error", err, "len", len(data))
		c.mu.RLock()
		cb := c.onDecodeError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
		return
	}

	c.mu.Lock()
	c.latest = r
	c.hasLatest = true
	cb := c.onReading
	c.mu.Unlock()

	c.publish(r)

	if cb != nil {
		cb(r)
	}
}

// publish delivers r to the Readings channel, evicting the oldest buffered
// reading when full.
func (c *Caliper) publish(r Reading) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	for {
		select {
		case c.readings <- r:
			return
		default:
		}
		select {
		case <-c.readings:
		default:
		}
	}
}

func (c *Caliper) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.readings)
}

func (c *Caliper) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Caliper) fireDisconnect(err error) {
	c.mu.RLock()
	cb := c.onDisconnect
	c.mu.RUnlock()

	if cb != nil {
		cb(err)
	}
}
