package proto

// Protocol version implemented by this client.
const ProtocolVersion = 10

// Packet header markers. The first payload byte of a server response
// identifies the packet shape.
const (
	OKHeader  byte = 0x00
	EOFHeader byte = 0xFE
	ERRHeader byte = 0xFF

	// NullValue marks a NULL column in a text-protocol row.
	NullValue byte = 0xFB

	// SQLStateMarker prefixes the 5-byte SQL-state block inside an ERR
	// packet payload.
	SQLStateMarker byte = 0x23
)

// NoDetailCode is the error code a server uses to signal a failure without
// structured detail. When present the ERR payload carries no SQL state and
// no message.
const NoDetailCode uint16 = 0xFFFF

// Command bytes sent as the first payload byte of a client request.
const (
	ComQuit        byte = 0x01
	ComInitDB      byte = 0x02
	ComQuery       byte = 0x03
	ComPing        byte = 0x0E
	ComStmtPrepare byte = 0x16
	ComStmtExecute byte = 0x17
	ComStmtClose   byte = 0x19
)

// Capability flags exchanged during the handshake.
const (
	CapLongPassword     uint32 = 0x00000001
	CapFoundRows        uint32 = 0x00000002
	CapLongFlag         uint32 = 0x00000004
	CapConnectWithDB    uint32 = 0x00000008
	CapProtocol41       uint32 = 0x00000200
	CapTransactions     uint32 = 0x00002000
	CapSecureConnection uint32 = 0x00008000
	CapMultiResults     uint32 = 0x00020000
	CapPluginAuth       uint32 = 0x00080000
)

// DefaultCharset is utf8_general_ci, matching what servers negotiate by
// default for a 4.1+ client.
const DefaultCharset byte = 33

// NativePasswordPlugin is the only auth plugin this client implements.
const NativePasswordPlugin = "mysql_native_password"

// MaxPacketSize is the largest single-frame payload the framing layer
// accepts. Multi-frame payloads are out of scope for this client.
const MaxPacketSize = 1<<24 - 1
