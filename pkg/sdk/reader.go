package sdk

import (
	"io"
	"net"
	"time"

	"github.com/go-faster/errors"
)

// Reader handles reading framed packets from the server. A frame carries a
// 3-byte little-endian payload length followed by a sequence id byte.
type Reader struct {
	conn net.Conn
	seq  *byte
}

// NewReader creates a new protocol reader sharing the connection's
// sequence counter with the writer.
func NewReader(conn net.Conn, seq *byte) *Reader {
	return &Reader{conn: conn, seq: seq}
}

// ReadPacket reads one framed packet and returns its payload. A sequence
// id that does not match the expected one is a structural framing failure.
func (r *Reader) ReadPacket() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r.conn, header); err != nil {
		return nil, errors.Wrap(err, "read packet header")
	}

	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	if header[3] != *r.seq {
		return nil, errors.Errorf("packet out of sequence: got %d, expected %d", header[3], *r.seq)
	}
	*r.seq++

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.conn, payload); err != nil {
		return nil, errors.Wrap(err, "read packet payload")
	}

	return payload, nil
}

// SetReadTimeout sets the read timeout
func (r *Reader) SetReadTimeout(timeout time.Duration) error {
	return r.conn.SetReadDeadline(time.Now().Add(timeout))
}

// ClearReadTimeout clears the read timeout
func (r *Reader) ClearReadTimeout() error {
	return r.conn.SetReadDeadline(time.Time{})
}
