package twowire

import "fmt"

// frame is one two-octet control/test frame of the two-wire protocol,
// packed big-endian. On the wire it travels as 4 hex-ASCII characters.
//
// Command frames: 2-bit opcode, 6-bit channel, 6-bit length, 2-bit payload
// type. Test-setup frames: 2-bit zero opcode, 6-bit field id, 8 bits of
// field payload (value<<2 for PHY and modulation index, the raw overflow
// bits for the length field).
type frame uint16

const (
	frameReset   frame = 0x0000
	frameTestEnd frame = 0xc000
)

// ack is the echo every sent frame expects back, as the hex-ASCII form of
// the two raw octets.
const ack = "0000"

const (
	setupFieldLength = 1
	setupFieldPHY    = 2
	setupFieldMod    = 3
)

func setupPHY(phy uint8) frame {
	return setupFieldPHY<<8 | frame(phy&0x3F)<<2
}

func setupModIndex(modIndex uint8) frame {
	return setupFieldMod<<8 | frame(modIndex&0x3F)<<2
}

// setupLength carries the two overflow bits of a packet length above 63.
func setupLength(packetLength uint8) frame {
	return setupFieldLength<<8 | frame(packetLength&0xC0)>>4
}

func txTest(channel, packetLength, payloadType uint8) frame {
	return 0b10<<14 | frame(channel&0x3F)<<8 | frame(packetLength&0x3F)<<2 | frame(payloadType&0x3)
}

func rxTest(channel uint8) frame {
	return 0b01<<14 | frame(channel&0x3F)<<8
}

// hex renders the frame as it goes on the wire.
func (f frame) hex() []byte {
	return []byte(fmt.Sprintf("%04x", uint16(f)))
}
