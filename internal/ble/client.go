// Package ble provides low-level BLE communication with Sylvac calipers.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/protocol"
	"tinygo.org/x/bluetooth"
)

// Errors
var (
	ErrNotConnected           = errors.New("ble: not connected to device")
	ErrAlreadyConnected       = errors.New("ble: already connected to a device")
	ErrDeviceNotFound         = errors.New("ble: device not found")
	ErrServiceNotFound        = errors.New("ble: simple-data service not found")
	ErrCharacteristicNotFound = errors.New("ble: measurement characteristic not found")
)

// connectScanTimeout bounds the scan Connect performs to locate an address.
const connectScanTimeout = 10 * time.Second

// BLE UUIDs
var (
	serviceUUID     = mustParseUUID(protocol.ServiceUUID)
	measurementUUID = mustParseUUID(protocol.MeasurementCharUUID)
)

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("ble: invalid uuid %q: %v", s, err))
	}
	return uuid
}

// ScanResult represents a discovered caliper.
type ScanResult struct {
	Name    string
	Address string
	RSSI    int16

	addr bluetooth.Address
}

// MatchName reports whether an advertised name contains pattern, ignoring case.
// An empty pattern matches any named device.
func MatchName(name, pattern string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

// Client manages the BLE connection to a caliper.
type Client struct {
	adapter  *bluetooth.Adapter
	device   bluetooth.Device
	measChar bluetooth.DeviceCharacteristic

	mu            sync.RWMutex
	connected     bool
	closing       bool
	deviceName    string
	deviceAddress string

	onNotification func([]byte)
	onDisconnect   func()
}

// NewClient creates a new BLE client using the default adapter.
func NewClient() (*Client, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	c := &Client{adapter: adapter}
	adapter.SetConnectHandler(c.handleConnectEvent)
	return c, nil
}

// SetNotificationCallback sets the callback for raw measurement notifications.
func (c *Client) SetNotificationCallback(cb func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotification = cb
}

// SetDisconnectCallback sets the callback for unexpected disconnections.
// It is not called for disconnections requested through Disconnect.
func (c *Client) SetDisconnectCallback(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

// Scan scans for devices whose local name contains pattern.
func (c *Client) Scan(ctx context.Context, timeout time.Duration, pattern string) ([]ScanResult, error) {
	c.mu.RLock()
	if c.connected {
		c.mu.RUnlock()
		return nil, ErrAlreadyConnected
	}
	c.mu.RUnlock()

	var results []ScanResult
	var mu sync.Mutex
	seen := make(map[string]bool)

	done := make(chan error, 1)

	go func() {
		done <- c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			addr := result.Address.String()

			mu.Lock()
			defer mu.Unlock()
			if seen[addr] || !MatchName(name, pattern) {
				return
			}
			seen[addr] = true
			results = append(results, ScanResult{
				Name:    name,
				Address: addr,
				RSSI:    result.RSSI,
				addr:    result.Address,
			})
		})
	}()

	select {
	case <-time.After(timeout):
	case <-ctx.Done():
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
	}

	c.adapter.StopScan()
	if err := <-done; err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return results, nil
}

// Connect connects to a caliper by address, scanning for it first.
func (c *Client) Connect(ctx context.Context, address string) error {
	if c.IsConnected() {
		return ErrAlreadyConnected
	}

	var target ScanResult
	found := make(chan struct{})
	var foundOnce sync.Once

	go func() {
		c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !strings.EqualFold(result.Address.String(), address) {
				return
			}
			foundOnce.Do(func() {
				target = ScanResult{
					Name:    result.LocalName(),
					Address: result.Address.String(),
					RSSI:    result.RSSI,
					addr:    result.Address,
				}
				close(found)
			})
		})
	}()

	select {
	case <-found:
		c.adapter.StopScan()
	case <-time.After(connectScanTimeout):
		c.adapter.StopScan()
		return ErrDeviceNotFound
	case <-ctx.Done():
		c.adapter.StopScan()
		return ctx.Err()
	}

	return c.ConnectToResult(ctx, target)
}

// ConnectToResult connects directly to a device from a scan result and
// enables measurement notifications.
func (c *Client) ConnectToResult(ctx context.Context, result ScanResult) error {
	if c.IsConnected() {
		return ErrAlreadyConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	device, err := c.adapter.Connect(result.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		device.Disconnect()
		return fmt.Errorf("failed to discover services: %w", err)
	}
	if len(services) == 0 {
		device.Disconnect()
		return ErrServiceNotFound
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{measurementUUID})
	if err != nil {
		device.Disconnect()
		return fmt.Errorf("failed to discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		device.Disconnect()
		return ErrCharacteristicNotFound
	}
	measChar := chars[0]

	if err := measChar.EnableNotifications(c.handleNotification); err != nil {
		device.Disconnect()
		return fmt.Errorf("failed to enable notifications: %w", err)
	}

	c.mu.Lock()
	c.device = device
	c.measChar = measChar
	c.connected = true
	c.closing = false
	c.deviceName = result.Name
	c.deviceAddress = result.Address
	c.mu.Unlock()

	return nil
}

// Disconnect disconnects from the current device.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.closing = true
	err := c.device.Disconnect()
	c.connected = false

	return err
}

// IsConnected returns true if connected to a device.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// DeviceName returns the name of the last connected device.
func (c *Client) DeviceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceName
}

// DeviceAddress returns the address of the last connected device.
func (c *Client) DeviceAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceAddress
}

// ReadMeasurement reads the measurement characteristic directly.
func (c *Client) ReadMeasurement() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	buf := make([]byte, protocol.MeasurementSize)
	n, err := c.measChar.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read measurement: %w", err)
	}
	return buf[:n], nil
}

// handleNotification forwards incoming BLE notifications.
func (c *Client) handleNotification(data []byte) {
	c.mu.RLock()
	cb := c.onNotification
	c.mu.RUnlock()

	if cb != nil {
		// The adapter may reuse the buffer after we return.
		buf := make([]byte, len(data))
		copy(buf, data)
		cb(buf)
	}
}

// handleConnectEvent tracks link loss reported by the adapter.
func (c *Client) handleConnectEvent(device bluetooth.Device, connected bool) {
	if connected {
		return
	}

	c.mu.Lock()
	if !c.connected || c.closing {
		c.mu.Unlock()
		return
	}
	if device.Address.String() != c.deviceAddress {
		c.mu.Unlock()
		return
	}
	c.connected = false
	cb := c.onDisconnect
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}
