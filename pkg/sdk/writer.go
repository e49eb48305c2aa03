package sdk

import (
	"net"
	"time"

	"github.com/go-faster/errors"

	"github.com/gear6io/ferret/pkg/proto"
)

// Writer handles writing framed packets to the server.
type Writer struct {
	conn net.Conn
	seq  *byte
}

// NewWriter creates a new protocol writer sharing the connection's
// sequence counter with the reader.
func NewWriter(conn net.Conn, seq *byte) *Writer {
	return &Writer{conn: conn, seq: seq}
}

// WritePacket frames and writes a single payload.
func (w *Writer) WritePacket(payload []byte) error {
	if len(payload) > proto.MaxPacketSize {
		return errors.Errorf("payload of %d bytes exceeds maximum packet size", len(payload))
	}

	frame := make([]byte, 0, 4+len(payload))
	frame = append(frame,
		byte(len(payload)),
		byte(len(payload)>>8),
		byte(len(payload)>>16),
		*w.seq,
	)
	frame = append(frame, payload...)
	*w.seq++

	if _, err := w.conn.Write(frame); err != nil {
		return errors.Wrap(err, "write packet")
	}
	return nil
}

// WriteCommand resets the sequence and writes a command packet whose
// payload is the command byte followed by its arguments. Every client
// command starts a new sequence.
func (w *Writer) WriteCommand(cmd byte, args []byte) error {
	*w.seq = 0

	payload := make([]byte, 0, 1+len(args))
	payload = append(payload, cmd)
	payload = append(payload, args...)

	return w.WritePacket(payload)
}

// SetWriteTimeout sets the write timeout
func (w *Writer) SetWriteTimeout(timeout time.Duration) error {
	return w.conn.SetWriteDeadline(time.Now().Add(timeout))
}
