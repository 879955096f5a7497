// Package twowire translates the RF-PHY test commands into the compact
// two-wire control protocol spoken by the IUT.
package twowire

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/xaionaro-go/hcibridge/translator"
	"github.com/xaionaro-go/hcibridge/transport"
)

func init() {
	translator.Register("twowire", func(ctx context.Context, tr transport.Transport) (translator.Adapter, error) {
		return New(ctx, tr), nil
	})
}

// IUT speaks the two-wire protocol to the device and synthesizes the
// matching HCI events for the tester.
type IUT struct {
	transport transport.Transport
	whitelist translator.Dispatch
	log       logger.Logger
}

var (
	_ translator.Adapter    = (*IUT)(nil)
	_ translator.RFCommands = (*IUT)(nil)
)

// New builds the adapter over an opened device transport. The logger
// attached to ctx is captured for all subsequent translation logging.
func New(ctx context.Context, tr transport.Transport) *IUT {
	iut := &IUT{
		transport: tr,
		log:       logger.FromCtx(ctx),
	}
	iut.whitelist = translator.Whitelist(iut)
	return iut
}

func (iut *IUT) Whitelist() translator.Dispatch { return iut.whitelist }
func (iut *IUT) Blacklist() translator.Dispatch { return translator.Dispatch{} }
func (iut *IUT) Transport() transport.Transport { return iut.transport }
func (iut *IUT) Close() error                   { return iut.transport.Close() }

func (iut *IUT) ctx(ctx context.Context) context.Context {
	return logger.CtxWithLogger(ctx, iut.log)
}

// Reset sends the two-wire reset frame and reports Command Complete for
// HCI Reset, status 00 on the exact ack echo and 1f on anything else.
func (iut *IUT) Reset(ctx context.Context) ([]byte, error) {
	ctx = iut.ctx(ctx)
	logger.Debugf(ctx, "Sending Reset to IUT")
	if err := iut.transport.Write(ctx, frameReset.hex()); err != nil {
		return nil, err
	}
	reply, err := iut.transport.Read(ctx)
	if err != nil {
		return nil, err
	}
	hexReply := hex.EncodeToString(reply)
	logger.Debugf(ctx, "Reply from IUT: %s", hexReply)

	status := "00"
	if hexReply != ack {
		status = "1f"
	}
	return []byte("040e0401030c" + status), nil
}

// payloadTypeFor remaps the HCI payload-packet type onto the two-wire one.
// The two-wire protocol only knows four of them; everything unknown falls
// back to 3.
func payloadTypeFor(hciType uint8) uint8 {
	switch hciType {
	case 0, 1, 2:
		return hciType
	case 4:
		return 3
	default:
		return 3
	}
}

// Completion event bodies per detected command version, status appended.
var (
	txEvents = map[int]string{1: "040E04011E20", 2: "040E04013420", 3: "040E04014f20"}
	rxEvents = map[int]string{1: "040E04011d20", 2: "040E04013320", 3: "040E04015020"}
)

// TransmitterTest handles the three transmitter-test command versions.
// The parameter length selects the version: 3 octets is v1, 4 octets is v2
// (extra PHY octet, announced to the device with a Setup PHY frame first),
// anything longer is v3, which the two-wire protocol has no fields for, so
// it is logged and driven with the v1 fields.
func (iut *IUT) TransmitterTest(ctx context.Context, params string) ([]byte, error) {
	ctx = iut.ctx(ctx)
	logger.Debugf(ctx, "Transmitter test parameters: %s", params)

	channel, err := octet(params, 0)
	if err != nil {
		return nil, err
	}
	packetLength, err := octet(params, 1)
	if err != nil {
		return nil, err
	}
	hciType, err := octet(params, 2)
	if err != nil {
		return nil, err
	}
	payloadType := payloadTypeFor(hciType)

	a := &attempt{iut: iut, version: 1}
	switch n := len(params) / 2; {
	case n == 4:
		a.version = 2
		phy, err := octet(params, 3)
		if err != nil {
			return nil, err
		}
		if err := a.send(ctx, "Test Setup PHY", setupPHY(phy)); err != nil {
			return nil, err
		}
	case n > 4:
		a.version = 3
		logger.Warnf(ctx, "Transmitter Test v3 not implemented")
	}

	if packetLength > 63 {
		if err := a.send(ctx, "Test Setup Length", setupLength(packetLength)); err != nil {
			return nil, err
		}
	}
	if err := a.send(ctx, "TX Test", txTest(channel, packetLength, payloadType)); err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "Status: %s", a.status())
	return []byte(txEvents[a.version] + a.status()), nil
}

// ReceiverTest is the receiving counterpart: 2 octets is v1, 3 octets is
// v2 (PHY and modulation index, each announced with its own setup frame),
// anything longer is v3, logged and driven with the v1 fields.
func (iut *IUT) ReceiverTest(ctx context.Context, params string) ([]byte, error) {
	ctx = iut.ctx(ctx)
	logger.Debugf(ctx, "Receiver test parameters: %s", params)

	channel, err := octet(params, 0)
	if err != nil {
		return nil, err
	}

	a := &attempt{iut: iut, version: 1}
	switch n := len(params) / 2; {
	case n == 3:
		a.version = 2
		phy, err := octet(params, 1)
		if err != nil {
			return nil, err
		}
		modIndex, err := octet(params, 2)
		if err != nil {
			return nil, err
		}
		if err := a.send(ctx, "Test Setup PHY", setupPHY(phy)); err != nil {
			return nil, err
		}
		if err := a.send(ctx, "Test Setup Mod", setupModIndex(modIndex)); err != nil {
			return nil, err
		}
	case n > 3:
		a.version = 3
		logger.Warnf(ctx, "Receiver Test v3 not implemented")
	}

	if err := a.send(ctx, "RX Test", rxTest(channel)); err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "Status: %s", a.status())
	return []byte(rxEvents[a.version] + a.status()), nil
}

// TestEnd terminates the running test and reads back the report word: top
// bit set means a report is available and the low 11 bits carry the packet
// count, emitted little-endian.
func (iut *IUT) TestEnd(ctx context.Context) ([]byte, error) {
	ctx = iut.ctx(ctx)
	logger.Debugf(ctx, "Sending Test End to IUT")
	if err := iut.transport.Write(ctx, frameTestEnd.hex()); err != nil {
		return nil, err
	}
	reply, err := iut.transport.Read(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "Reply from IUT: %s", hex.EncodeToString(reply))

	var report uint16
	switch {
	case len(reply) >= 2:
		report = binary.BigEndian.Uint16(reply[:2])
	case len(reply) == 1:
		report = uint16(reply[0])
	}
	if report&0x8000 == 0 {
		logger.Debugf(ctx, "Test End failed")
		return []byte("040E04011F20" + "01"), nil
	}
	numPackets := report & 0x7FF
	logger.Debugf(ctx, "Num packets: %d", numPackets)
	return []byte(fmt.Sprintf("040E06011F20"+"00"+"%02x%02x", numPackets&0xFF, numPackets>>8)), nil
}

// attempt tracks one translated command: the detected version, the frames
// exchanged so far and how many of them went unacknowledged.
type attempt struct {
	iut     *IUT
	version int
	failed  int
}

// send writes one frame and checks the device's echo. A missing or wrong
// echo is a soft failure: it is counted and the attempt carries on.
func (a *attempt) send(ctx context.Context, name string, f frame) error {
	logger.Debugf(ctx, "Sending %s to IUT: %s", name, f.hex())
	if err := a.iut.transport.Write(ctx, f.hex()); err != nil {
		return err
	}
	reply, err := a.iut.transport.Read(ctx)
	if err != nil {
		return err
	}
	hexReply := hex.EncodeToString(reply)
	logger.Debugf(ctx, "Reply from IUT: %s", hexReply)
	if hexReply != ack {
		a.failed++
	}
	return nil
}

func (a *attempt) status() string {
	if a.failed == 0 {
		return "00"
	}
	return "01"
}

func octet(params string, i int) (uint8, error) {
	if len(params) < 2*i+2 {
		return 0, fmt.Errorf("twowire: parameters %q have no octet %d", params, i)
	}
	v, err := strconv.ParseUint(params[2*i:2*i+2], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("twowire: bad octet %d in %q: %w", i, params, err)
	}
	return uint8(v), nil
}
