package sylvac

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// newReconnectBreaker builds the circuit breaker that bounds reconnection.
// It opens after maxReconnectFailures consecutive failed attempts.
func newReconnectBreaker(c *Caliper) *gobreaker.CircuitBreaker[struct{}] {
	maxFailures := c.config.maxReconnectFailures
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "reconnect:" + c.device.Address,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("reconnect breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// handleLinkLoss is called by the BLE client when the link drops unexpectedly.
func (c *Caliper) handleLinkLoss() {
	if c.isClosed() {
		return
	}

	c.log.Warn("caliper link lost", "address", c.DeviceAddress())

	if !c.config.autoReconnect {
		c.markClosed()
		c.fireDisconnect(ErrConnectionLost)
		return
	}

	if c.reconnecting.CompareAndSwap(false, true) {
		go c.reconnectLoop()
	}
}

// reconnectLoop retries the connection, spaced by the reconnect interval,
// until it succeeds, the breaker opens or the caliper is closed.
func (c *Caliper) reconnectLoop() {
	defer c.reconnecting.Store(false)

	limiter := rate.NewLimiter(rate.Every(c.config.reconnectInterval), 1)
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(c.ctx); err != nil {
			return
		}

		_, err := c.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, c.connect(c.ctx)
		})
		if err == nil {
			c.log.Info("caliper reconnected", "address", c.DeviceAddress(), "attempt", attempt)
			c.mu.RLock()
			cb := c.onReconnect
			c.mu.RUnlock()
			if cb != nil {
				cb()
			}
			return
		}

		if c.ctx.Err() != nil {
			return
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if lastErr == nil {
				lastErr = err
			}
			c.log.Error("giving up on reconnection", "attempts", attempt-1, "error", lastErr)
			c.markClosed()
			c.fireDisconnect(fmt.Errorf("%w: %w", ErrReconnectFailed, lastErr))
			return
		}

		lastErr = err
		c.log.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
	}
}
