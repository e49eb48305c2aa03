package proto

import (
	"crypto/sha1"
	"encoding/binary"

	"github.com/go-faster/errors"
)

// Handshake holds the fields of the server's initial handshake packet that
// the client acts on.
type Handshake struct {
	ProtocolVersion byte
	ServerVersion   string
	ConnectionID    uint32
	AuthPluginData  []byte
	Capabilities    uint32
	Charset         byte
	StatusFlags     uint16
	AuthPluginName  string
}

// ParseHandshake parses the server's initial handshake (protocol v10)
// payload. Structural failures are plain parse errors; the caller converts
// them into the handshake taxonomy variant.
func ParseHandshake(payload []byte) (*Handshake, error) {
	buf := NewBuffer(payload)
	hs := &Handshake{}

	var err error
	if hs.ProtocolVersion, err = buf.ReadByte(); err != nil {
		return nil, errors.Wrap(err, "read protocol version")
	}
	if hs.ProtocolVersion != ProtocolVersion {
		return nil, errors.Errorf("unsupported protocol version %d", hs.ProtocolVersion)
	}
	if hs.ServerVersion, err = buf.ReadStringNul(); err != nil {
		return nil, errors.Wrap(err, "read server version")
	}
	if hs.ConnectionID, err = buf.ReadUint32(); err != nil {
		return nil, errors.Wrap(err, "read connection id")
	}

	// auth-plugin-data-part-1, 8 bytes plus a filler byte.
	part1, err := buf.ReadBytes(8)
	if err != nil {
		return nil, errors.Wrap(err, "read auth data")
	}
	if err = buf.Skip(1); err != nil {
		return nil, errors.Wrap(err, "skip filler")
	}

	capLow, err := buf.ReadUint16()
	if err != nil {
		return nil, errors.Wrap(err, "read capability flags")
	}
	hs.Capabilities = uint32(capLow)

	// Everything past the lower capability flags is optional in old servers.
	if buf.Remaining() == 0 {
		hs.AuthPluginData = part1
		return hs, nil
	}

	if hs.Charset, err = buf.ReadByte(); err != nil {
		return nil, errors.Wrap(err, "read charset")
	}
	if hs.StatusFlags, err = buf.ReadUint16(); err != nil {
		return nil, errors.Wrap(err, "read status flags")
	}
	capHigh, err := buf.ReadUint16()
	if err != nil {
		return nil, errors.Wrap(err, "read capability flags upper")
	}
	hs.Capabilities |= uint32(capHigh) << 16

	authDataLen, err := buf.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "read auth data length")
	}
	if err = buf.Skip(10); err != nil {
		return nil, errors.Wrap(err, "skip reserved")
	}

	authData := append([]byte(nil), part1...)
	if hs.Capabilities&CapSecureConnection != 0 {
		n := 13
		if int(authDataLen)-8 > n {
			n = int(authDataLen) - 8
		}
		part2, err := buf.ReadBytes(n)
		if err != nil {
			return nil, errors.Wrap(err, "read auth data part 2")
		}
		// Servers NUL-terminate the scramble; drop the terminator.
		if len(part2) > 0 && part2[len(part2)-1] == 0x00 {
			part2 = part2[:len(part2)-1]
		}
		authData = append(authData, part2...)
	}
	hs.AuthPluginData = authData

	if hs.Capabilities&CapPluginAuth != 0 {
		if hs.AuthPluginName, err = buf.ReadStringNul(); err != nil {
			return nil, errors.Wrap(err, "read auth plugin name")
		}
	}

	return hs, nil
}

// ClientCapabilities returns the capability flags this client advertises
// in its handshake response.
func ClientCapabilities(database string) uint32 {
	caps := CapProtocol41 | CapLongPassword | CapTransactions |
		CapSecureConnection | CapPluginAuth
	if database != "" {
		caps |= CapConnectWithDB
	}
	return caps
}

// BuildHandshakeResponse builds the HandshakeResponse41 payload.
func BuildHandshakeResponse(username, password, database string, scramble []byte) []byte {
	caps := ClientCapabilities(database)
	auth := ScramblePassword(password, scramble)

	out := make([]byte, 0, 64+len(username)+len(auth)+len(database))
	out = binary.LittleEndian.AppendUint32(out, caps)
	out = binary.LittleEndian.AppendUint32(out, MaxPacketSize)
	out = append(out, DefaultCharset)
	out = append(out, make([]byte, 23)...)
	out = append(out, username...)
	out = append(out, 0x00)
	out = append(out, byte(len(auth)))
	out = append(out, auth...)
	if database != "" {
		out = append(out, database...)
		out = append(out, 0x00)
	}
	out = append(out, NativePasswordPlugin...)
	out = append(out, 0x00)
	return out
}

// ScramblePassword computes the mysql_native_password auth response:
// SHA1(password) XOR SHA1(scramble + SHA1(SHA1(password))).
func ScramblePassword(password string, scramble []byte) []byte {
	if password == "" {
		return nil
	}
	if len(scramble) > 20 {
		scramble = scramble[:20]
	}

	stage1 := sha1.Sum([]byte(password))
	stage2 := sha1.Sum(stage1[:])

	h := sha1.New()
	h.Write(scramble)
	h.Write(stage2[:])
	out := h.Sum(nil)

	for i := range out {
		out[i] ^= stage1[i]
	}
	return out
}
