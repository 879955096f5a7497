// Package transport carries the hex-ASCII frames between the bridge and
// its two serial endpoints.
package transport

import "context"

// Transport is the byte-transport contract shared by the tester and IUT
// endpoints.
//
// Read returns the raw bytes of one frame, or an empty slice when the
// endpoint stayed silent for the configured timeout. Write takes a
// hex-ASCII frame and puts the decoded bytes on the wire.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}
