package proto

import (
	"encoding/binary"

	"github.com/go-faster/errors"
)

// ErrShortBuffer is returned by every Buffer read when fewer bytes remain
// than the read requires. Callers at the error-reporting boundary convert it
// into a taxonomy variant; it never escapes the client's public surface.
var ErrShortBuffer = errors.New("insufficient bytes remain in packet payload")

// Buffer is a cursor over a single packet payload. All integer reads are
// little-endian per protocol convention. Reads never advance the cursor on
// failure.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer wraps payload bytes in a read cursor. The payload is not copied;
// the caller must not mutate it while the buffer is in use.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// ReadByte reads a single byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// PeekByte returns the next byte without advancing the cursor. The second
// return is false when the payload is exhausted.
func (b *Buffer) PeekByte() (byte, bool) {
	if b.Remaining() < 1 {
		return 0, false
	}
	return b.data[b.pos], true
}

// ReadUint16 reads a 16-bit little-endian unsigned integer.
func (b *Buffer) ReadUint16() (uint16, error) {
	if b.Remaining() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

// ReadUint24 reads a 24-bit little-endian unsigned integer.
func (b *Buffer) ReadUint24() (uint32, error) {
	if b.Remaining() < 3 {
		return 0, ErrShortBuffer
	}
	v := uint32(b.data[b.pos]) | uint32(b.data[b.pos+1])<<8 | uint32(b.data[b.pos+2])<<16
	b.pos += 3
	return v, nil
}

// ReadUint32 reads a 32-bit little-endian unsigned integer.
func (b *Buffer) ReadUint32() (uint32, error) {
	if b.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// ReadUint64 reads a 64-bit little-endian unsigned integer.
func (b *Buffer) ReadUint64() (uint64, error) {
	if b.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(b.data[b.pos:])
	b.pos += 8
	return v, nil
}

// ReadLenEncInt reads a length-encoded integer. The second return is true
// when the value is the NULL marker (0xFB).
func (b *Buffer) ReadLenEncInt() (uint64, bool, error) {
	first, err := b.ReadByte()
	if err != nil {
		return 0, false, err
	}

	switch {
	case first < 0xFB:
		return uint64(first), false, nil
	case first == 0xFB:
		return 0, true, nil
	case first == 0xFC:
		v, err := b.ReadUint16()
		return uint64(v), false, err
	case first == 0xFD:
		v, err := b.ReadUint24()
		return uint64(v), false, err
	case first == 0xFE:
		v, err := b.ReadUint64()
		return v, false, err
	default:
		return 0, false, errors.Errorf("invalid length-encoded integer prefix 0x%02X", first)
	}
}

// ReadLenEncBytes reads a length-encoded byte string. A NULL marker yields
// a nil slice with null=true.
func (b *Buffer) ReadLenEncBytes() ([]byte, bool, error) {
	n, null, err := b.ReadLenEncInt()
	if err != nil {
		return nil, false, err
	}
	if null {
		return nil, true, nil
	}
	data, err := b.ReadBytes(int(n))
	return data, false, err
}

// ReadLenEncString reads a length-encoded string.
func (b *Buffer) ReadLenEncString() (string, bool, error) {
	data, null, err := b.ReadLenEncBytes()
	return string(data), null, err
}

// ReadStringNul reads bytes up to and including a NUL terminator and
// returns them without the terminator.
func (b *Buffer) ReadStringNul() (string, error) {
	for i := b.pos; i < len(b.data); i++ {
		if b.data[i] == 0x00 {
			s := string(b.data[b.pos:i])
			b.pos = i + 1
			return s, nil
		}
	}
	return "", ErrShortBuffer
}

// ReadBytes reads exactly n bytes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, ErrShortBuffer
	}
	v := b.data[b.pos : b.pos+n]
	b.pos += n
	return v, nil
}

// Skip advances the cursor by n bytes.
func (b *Buffer) Skip(n int) error {
	if n < 0 || b.Remaining() < n {
		return ErrShortBuffer
	}
	b.pos += n
	return nil
}

// Rest returns all unread bytes and advances the cursor to the end.
func (b *Buffer) Rest() []byte {
	v := b.data[b.pos:]
	b.pos = len(b.data)
	return v
}
