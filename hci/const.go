package hci

type PacketType uint8

// HCI UART packet indicators
const (
	PacketTypeCommand = PacketType(0x01)
	PacketTypeACLData = PacketType(0x02)
	PacketTypeSCOData = PacketType(0x03)
	PacketTypeEvent   = PacketType(0x04)
	PacketTypeVendor  = PacketType(0xFF)
)
