package sylvac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeamusWaldron/sylvac_ble_library/internal/ble"
	"github.com/SeamusWaldron/sylvac_ble_library/internal/protocol"
)

// fakeConn stands in for the BLE client.
type fakeConn struct {
	mu           sync.Mutex
	connected    bool
	connectCalls int
	connectErr   func(call int) error
	onNotify     func([]byte)
	onDisconnect func()
}

func (f *fakeConn) Connect(ctx context.Context, address string) error {
	return f.ConnectToResult(ctx, ble.ScanResult{Address: address})
}

func (f *fakeConn) ConnectToResult(ctx context.Context, result ble.ScanResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		if err := f.connectErr(f.connectCalls); err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) DeviceName() string    { return "" }
func (f *fakeConn) DeviceAddress() string { return "" }

func (f *fakeConn) SetNotificationCallback(cb func([]byte)) { f.onNotify = cb }
func (f *fakeConn) SetDisconnectCallback(cb func())         { f.onDisconnect = cb }

func (f *fakeConn) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// drop simulates the link going down.
func (f *fakeConn) drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.onDisconnect()
}

func newTestCaliper(t *testing.T, opts ...Option) (*Caliper, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	dev := Device{Name: "SY289 0042", Address: "AA:BB:CC:DD:EE:FF"}
	c := newCaliper(fc, dev, newConfig(opts))
	require.NoError(t, c.connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c, fc
}

func TestCaliper_Notification(t *testing.T) {
	c, fc := newTestCaliper(t)

	var got []Reading
	c.OnReading(func(r Reading) { got = append(got, r) })

	_, ok := c.Latest()
	assert.False(t, ok)

	fc.onNotify(protocol.EncodeMeasurement(12345))

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.InDelta(t, 12.345, latest.Value, 1e-9)

	require.Len(t, got, 1)
	r := <-c.Readings()
	assert.Equal(t, int32(12345), r.Micrometres)
	assert.Equal(t, "SY289 0042", c.DeviceName())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", c.DeviceAddress())
}

func TestCaliper_DropsOldestWhenFull(t *testing.T) {
	c, fc := newTestCaliper(t, WithReadingBuffer(2))

	for _, um := range []int32{1000, 2000, 3000} {
		fc.onNotify(protocol.EncodeMeasurement(um))
	}

	assert.Equal(t, int32(2000), (<-c.Readings()).Micrometres)
	assert.Equal(t, int32(3000), (<-c.Readings()).Micrometres)
}

func TestCaliper_DecodeError(t *testing.T) {
	c, fc := newTestCaliper(t)

	var decodeErr error
	var raw [][]byte
	c.OnDecodeError(func(err error) { decodeErr = err })
	c.OnNotification(func(data []byte) { raw = append(raw, append([]byte(nil), data...)) })

	fc.onNotify([]byte{0x01, 0x02, 0x03})

	assert.ErrorIs(t, decodeErr, protocol.ErrInvalidLength)
	assert.Equal(t, [][]byte{{0x01, 0x02, 0x03}}, raw)
	_, ok := c.Latest()
	assert.False(t, ok)
	assert.Empty(t, c.Readings())
}

func TestCaliper_CloseClosesReadings(t *testing.T) {
	c, fc := newTestCaliper(t)

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())

	_, ok := <-c.Readings()
	assert.False(t, ok)

	// Late notifications are ignored rather than sent on a closed channel.
	fc.onNotify(protocol.EncodeMeasurement(1))
	require.NoError(t, c.Close())
}

func TestCaliper_LinkLossWithoutReconnect(t *testing.T) {
	c, fc := newTestCaliper(t)

	var lost error
	c.OnDisconnect(func(err error) { lost = err })

	fc.drop()

	assert.ErrorIs(t, lost, ErrConnectionLost)
	_, ok := <-c.Readings()
	assert.False(t, ok)
}

func TestCaliper_Reconnects(t *testing.T) {
	c, fc := newTestCaliper(t,
		WithAutoReconnect(true),
		WithReconnectInterval(time.Millisecond),
	)
	fc.connectErr = func(call int) error {
		// call 1 is the initial connect; the first retry fails.
		if call == 2 {
			return errors.New("busy")
		}
		return nil
	}

	reconnected := make(chan struct{})
	c.OnReconnect(func() { close(reconnected) })

	fc.drop()

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect")
	}
	assert.True(t, c.IsConnected())
	assert.Equal(t, 3, fc.calls())

	fc.onNotify(protocol.EncodeMeasurement(500))
	assert.Equal(t, int32(500), (<-c.Readings()).Micrometres)
}

func TestCaliper_ReconnectGivesUp(t *testing.T) {
	c, fc := newTestCaliper(t,
		WithAutoReconnect(true),
		WithReconnectInterval(time.Millisecond),
		WithMaxReconnectFailures(3),
	)
	boom := errors.New("out of range")
	fc.connectErr = func(call int) error {
		if call > 1 {
			return boom
		}
		return nil
	}

	done := make(chan error, 1)
	c.OnDisconnect(func(err error) { done <- err })

	fc.drop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrReconnectFailed)
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect to give up")
	}
	assert.Equal(t, 4, fc.calls())

	_, ok := <-c.Readings()
	assert.False(t, ok)
}

func TestCaliper_FeedsRecorder(t *testing.T) {
	c, fc := newTestCaliper(t)
	rec := NewRecorder()

	rec.OnMeasurement(func(m Measurement) {
		if m.Number < 2 {
			fc.onNotify(protocol.EncodeMeasurement(int32(m.Number+1) * 1000))
		}
	})
	fc.onNotify(protocol.EncodeMeasurement(1000))

	require.NoError(t, rec.Acquire(context.Background(), c, 2, 0))
	ms := rec.Measurements()
	require.Len(t, ms, 2)
	assert.Equal(t, 1.0, ms[0].Value)
	assert.Equal(t, 2.0, ms[1].Value)
}
