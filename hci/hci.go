// Package hci decodes the frames exchanged between the tester and the
// bridge. Frames are hex-ASCII strings at this boundary; the first octet
// selects between Command and ACL Data decoding.
//
// The bit layouts below are the ones this bridge's framing uses. They do
// not match the canonical HCI UART layout (the OGF shift and the ACL
// handle mask differ) and must stay as they are.
package hci

import (
	"context"
	"fmt"
	"strconv"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// OpcodeKey identifies one dispatched command: (OCF, OGF) for Command
// frames, (handle, PB/BC flags) for ACL Data frames.
type OpcodeKey struct {
	OCF uint16
	OGF uint8
}

// Frame is one decoded HCI packet. It is produced by Decode and never
// mutated afterwards.
type Frame struct {
	Type PacketType // PacketTypeCommand or PacketTypeACLData

	// Command fields
	OCF uint16
	OGF uint8

	// ACL Data fields
	Handle   uint16
	PBBCFlag uint8

	Length  uint8
	Payload string
}

// Key returns the dispatch table key for the frame.
func (f Frame) Key() OpcodeKey {
	if f.Type == PacketTypeCommand {
		return OpcodeKey{OCF: f.OCF, OGF: f.OGF}
	}
	return OpcodeKey{OCF: f.Handle, OGF: f.PBBCFlag}
}

// Decode parses a hex-ASCII frame. An indicator octet of 0x01 selects
// Command decoding, anything else selects ACL Data decoding.
func Decode(ctx context.Context, data string) (Frame, error) {
	if len(data) < 8 {
		return Frame{}, fmt.Errorf("hci: frame too short: %q", data)
	}
	indicator, err := octet(data, 0)
	if err != nil {
		return Frame{}, err
	}
	if PacketType(indicator) == PacketTypeCommand {
		return decodeCommand(ctx, data)
	}
	return decodeACLData(ctx, data)
}

func decodeCommand(ctx context.Context, data string) (Frame, error) {
	logger.Debugf(ctx, "HCI Command")
	ocf, err := octet(data, 1)
	if err != nil {
		return Frame{}, err
	}
	group, err := octet(data, 2)
	if err != nil {
		return Frame{}, err
	}
	length, err := octet(data, 3)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{
		Type:    PacketTypeCommand,
		OCF:     uint16(ocf),
		OGF:     group >> 2,
		Length:  length,
		Payload: data[8:],
	}
	logger.Debugf(ctx, "OCF: %d - OGF: %d - Length: %d - Data: %s", f.OCF, f.OGF, f.Length, f.Payload)
	return f, nil
}

func decodeACLData(ctx context.Context, data string) (Frame, error) {
	logger.Debugf(ctx, "HCI ACL Data")
	lo, err := octet(data, 1)
	if err != nil {
		return Frame{}, err
	}
	hi, err := octet(data, 2)
	if err != nil {
		return Frame{}, err
	}
	length, err := octet(data, 3)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{
		Type:     PacketTypeACLData,
		Handle:   (uint16(hi)<<8 | uint16(lo)) & 0xEFF,
		PBBCFlag: hi >> 4,
		Length:   length,
		Payload:  data[8:],
	}
	logger.Debugf(ctx, "Handle: %d - PB/BC Flags: %d - Length: %d - Data: %s", f.Handle, f.PBBCFlag, f.Length, f.Payload)
	return f, nil
}

// octet parses the i-th octet (two hex digits) of a hex-ASCII frame.
func octet(data string, i int) (uint8, error) {
	if len(data) < 2*i+2 {
		return 0, fmt.Errorf("hci: frame %q has no octet %d", data, i)
	}
	v, err := strconv.ParseUint(data[2*i:2*i+2], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("hci: bad octet %d in %q: %w", i, data, err)
	}
	return uint8(v), nil
}
