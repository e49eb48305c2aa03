package proto

import (
	"github.com/go-faster/errors"
)

// OKPacket holds the fields of a server OK packet.
type OKPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16
}

// ParseOK parses an OK payload. The leading 0x00 marker must still be
// present; callers identify the packet by peeking, not consuming.
func ParseOK(payload []byte) (*OKPacket, error) {
	buf := NewBuffer(payload)

	marker, err := buf.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "read marker")
	}
	if marker != OKHeader {
		return nil, errors.Errorf("unexpected OK marker 0x%02X", marker)
	}

	ok := &OKPacket{}
	if ok.AffectedRows, _, err = buf.ReadLenEncInt(); err != nil {
		return nil, errors.Wrap(err, "read affected rows")
	}
	if ok.LastInsertID, _, err = buf.ReadLenEncInt(); err != nil {
		return nil, errors.Wrap(err, "read last insert id")
	}
	if buf.Remaining() >= 2 {
		if ok.StatusFlags, err = buf.ReadUint16(); err != nil {
			return nil, errors.Wrap(err, "read status flags")
		}
	}
	if buf.Remaining() >= 2 {
		if ok.Warnings, err = buf.ReadUint16(); err != nil {
			return nil, errors.Wrap(err, "read warnings")
		}
	}
	return ok, nil
}

// Column describes one column of a resultset or one parameter of a
// prepared statement.
type Column struct {
	Schema   string
	Table    string
	Name     string
	Charset  uint16
	Length   uint32
	Type     FieldType
	Flags    uint16
	Decimals byte
}

// ParseColumn parses a ColumnDefinition41 payload.
func ParseColumn(payload []byte) (*Column, error) {
	buf := NewBuffer(payload)
	col := &Column{}

	// catalog, always "def".
	if _, _, err := buf.ReadLenEncString(); err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	var err error
	if col.Schema, _, err = buf.ReadLenEncString(); err != nil {
		return nil, errors.Wrap(err, "read schema")
	}
	if col.Table, _, err = buf.ReadLenEncString(); err != nil {
		return nil, errors.Wrap(err, "read table")
	}
	// org_table
	if _, _, err = buf.ReadLenEncString(); err != nil {
		return nil, errors.Wrap(err, "read org table")
	}
	if col.Name, _, err = buf.ReadLenEncString(); err != nil {
		return nil, errors.Wrap(err, "read name")
	}
	// org_name
	if _, _, err = buf.ReadLenEncString(); err != nil {
		return nil, errors.Wrap(err, "read org name")
	}
	// length of fixed-length fields, always 0x0C.
	if _, _, err = buf.ReadLenEncInt(); err != nil {
		return nil, errors.Wrap(err, "read fixed length")
	}
	if col.Charset, err = buf.ReadUint16(); err != nil {
		return nil, errors.Wrap(err, "read charset")
	}
	if col.Length, err = buf.ReadUint32(); err != nil {
		return nil, errors.Wrap(err, "read column length")
	}
	typeByte, err := buf.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "read column type")
	}
	col.Type = FieldType(typeByte)
	if col.Flags, err = buf.ReadUint16(); err != nil {
		return nil, errors.Wrap(err, "read flags")
	}
	if col.Decimals, err = buf.ReadByte(); err != nil {
		return nil, errors.Wrap(err, "read decimals")
	}

	return col, nil
}
