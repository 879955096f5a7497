// Package translator defines the capability set every device-protocol
// adapter implements, and the opcode dispatch tables the bridge drives it
// through.
package translator

import (
	"context"

	"github.com/xaionaro-go/hcibridge/hci"
	"github.com/xaionaro-go/hcibridge/transport"
)

// Handler translates one intercepted tester command into the event frame
// answered to the tester. params is the command payload, empty when the
// command declared a zero length.
type Handler func(ctx context.Context, params string) ([]byte, error)

// Dispatch maps opcode keys to their handlers. A table is built once at
// adapter construction and never changes afterwards.
type Dispatch map[hci.OpcodeKey]Handler

// RFCommands is the RF-PHY test capability set.
type RFCommands interface {
	Reset(ctx context.Context) ([]byte, error)
	TransmitterTest(ctx context.Context, params string) ([]byte, error)
	ReceiverTest(ctx context.Context, params string) ([]byte, error)
	TestEnd(ctx context.Context) ([]byte, error)
}

// Adapter is what the bridge orchestrator operates on. Whitelist is the
// exhaustive interception table used in synchronous mode; Blacklist is the
// selective table used in asynchronous mode, where every unlisted opcode
// passes through to the device untouched.
type Adapter interface {
	Whitelist() Dispatch
	Blacklist() Dispatch
	Transport() transport.Transport
	Close() error
}

// Whitelist builds the fixed RF-PHY interception table over rf. The three
// transmitter-test and receiver-test opcodes map the three command versions
// onto the same capability; the version is re-derived from the payload.
func Whitelist(rf RFCommands) Dispatch {
	return Dispatch{
		{OCF: 0x03, OGF: 3}: NoParams(rf.Reset),
		{OCF: 0x1e, OGF: 8}: rf.TransmitterTest,
		{OCF: 0x34, OGF: 8}: rf.TransmitterTest,
		{OCF: 0x50, OGF: 8}: rf.TransmitterTest,
		{OCF: 0x1d, OGF: 8}: rf.ReceiverTest,
		{OCF: 0x33, OGF: 8}: rf.ReceiverTest,
		{OCF: 0x4f, OGF: 8}: rf.ReceiverTest,
		{OCF: 0x1f, OGF: 8}: NoParams(rf.TestEnd),
	}
}

// NoParams adapts a parameterless capability to the Handler signature.
func NoParams(f func(ctx context.Context) ([]byte, error)) Handler {
	return func(ctx context.Context, _ string) ([]byte, error) {
		return f(ctx)
	}
}
