package hcibridge

import (
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Option configures a Bridge. Can only be used with New.
type Option func(*Bridge)

// WithMode selects the bridging mode.
func WithMode(m Mode) Option {
	return func(b *Bridge) {
		b.mode = m
	}
}

// WithRelayDelay paces the device-relay listener of the asynchronous mode.
func WithRelayDelay(d time.Duration) Option {
	return func(b *Bridge) {
		b.relayDelay = d
	}
}

// WithCodecLogger gives the HCI codec its own logger, so its verbosity can
// be tuned independently of the bridge's.
func WithCodecLogger(l logger.Logger) Option {
	return func(b *Bridge) {
		b.codecLog = l
	}
}
