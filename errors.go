package sylvac

import "errors"

// Sentinel errors for the sylvac package.
var (
	// Connection errors
	ErrNotConnected     = errors.New("sylvac: not connected to device")
	ErrAlreadyConnected = errors.New("sylvac: already connected")
	ErrDeviceNotFound   = errors.New("sylvac: device not found")
	ErrConnectionFailed = errors.New("sylvac: connection failed")
	ErrConnectionLost   = errors.New("sylvac: connection lost")
	ErrReconnectFailed  = errors.New("sylvac: reconnection failed")
	ErrClosed           = errors.New("sylvac: caliper closed")

	// Acquisition errors
	ErrInvalidCount    = errors.New("sylvac: measurement count must be positive")
	ErrInvalidInterval = errors.New("sylvac: interval must not be negative")
	ErrSourceClosed    = errors.New("sylvac: reading source closed")
	ErrAcquiring       = errors.New("sylvac: acquisition already running")
)
