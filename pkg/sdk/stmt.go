package sdk

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	ferrors "github.com/gear6io/ferret/pkg/errors"
	"github.com/gear6io/ferret/pkg/proto"
)

// Stmt represents a prepared statement. It pins its connection until
// closed.
type Stmt struct {
	conn    *connection
	id      uint32
	query   string
	params  []proto.Column
	cols    []proto.Column
	closed  bool
	onClose func(error)
}

// prepare sends COM_STMT_PREPARE and reads the statement metadata.
func (c *connection) prepare(ctx context.Context, query string) (*Stmt, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	if err := c.applyTimeouts(); err != nil {
		return nil, err
	}
	if err := c.writer.WriteCommand(proto.ComStmtPrepare, []byte(query)); err != nil {
		return nil, err
	}

	payload, err := c.reader.ReadPacket()
	if err != nil {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) == 0 {
		return nil, ferrors.New(ferrors.InvalidResponse{})
	}
	if payload[0] == proto.ERRHeader {
		return nil, ferrors.DecodeServerError(payload[1:])
	}
	if payload[0] != proto.OKHeader {
		return nil, ferrors.New(ferrors.InvalidResponse{})
	}

	buf := proto.NewBuffer(payload[1:])

	stmt := &Stmt{conn: c, query: query}
	if stmt.id, err = buf.ReadUint32(); err != nil {
		return nil, ferrors.New(ferrors.DecodingError{})
	}
	numCols, err := buf.ReadUint16()
	if err != nil {
		return nil, ferrors.New(ferrors.DecodingError{})
	}
	numParams, err := buf.ReadUint16()
	if err != nil {
		return nil, ferrors.New(ferrors.DecodingError{})
	}

	if stmt.params, err = c.readColumnBlock(int(numParams)); err != nil {
		return nil, err
	}
	if stmt.cols, err = c.readColumnBlock(int(numCols)); err != nil {
		return nil, err
	}

	return stmt, nil
}

// readColumnBlock reads n column-definition packets plus their EOF
// terminator.
func (c *connection) readColumnBlock(n int) ([]proto.Column, error) {
	if n == 0 {
		return nil, nil
	}

	cols := make([]proto.Column, 0, n)
	for i := 0; i < n; i++ {
		payload, err := c.reader.ReadPacket()
		if err != nil {
			return nil, ferrors.New(ferrors.InvalidPacket{})
		}
		col, err := proto.ParseColumn(payload)
		if err != nil {
			return nil, ferrors.New(ferrors.InvalidPacket{})
		}
		cols = append(cols, *col)
	}

	payload, err := c.reader.ReadPacket()
	if err != nil {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) == 0 || payload[0] != proto.EOFHeader {
		return nil, ferrors.New(ferrors.InvalidResponse{})
	}

	return cols, nil
}

// NumParams returns the number of placeholders the statement declares.
func (s *Stmt) NumParams() int {
	return len(s.params)
}

// ParamTypes returns the declared parameter types.
func (s *Stmt) ParamTypes() []proto.FieldType {
	types := make([]proto.FieldType, len(s.params))
	for i, p := range s.params {
		types[i] = p.Type
	}
	return types
}

// Exec executes the statement with the given bound parameters.
func (s *Stmt) Exec(ctx context.Context, args ...interface{}) (*Result, error) {
	rows, result, err := s.execute(ctx, args...)
	if err != nil {
		return nil, err
	}
	if rows != nil {
		rows.Close()
		return &Result{}, nil
	}
	return result, nil
}

// Query executes the statement and returns its resultset.
func (s *Stmt) Query(ctx context.Context, args ...interface{}) (*Rows, error) {
	rows, _, err := s.execute(ctx, args...)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = &Rows{}
	}
	return rows, nil
}

// Close discards the statement on the server and releases its connection.
func (s *Stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	// COM_STMT_CLOSE has no response.
	var payload [4]byte
	binary.LittleEndian.PutUint32(payload[:], s.id)
	err := s.conn.writer.WriteCommand(proto.ComStmtClose, payload[:])

	if s.onClose != nil {
		s.onClose(err)
	}
	return err
}

func (s *Stmt) execute(ctx context.Context, args ...interface{}) (*Rows, *Result, error) {
	if s.closed {
		return nil, nil, ferrors.New(ferrors.InvalidResponse{})
	}

	body, err := s.bind(args)
	if err != nil {
		return nil, nil, err
	}

	c := s.conn
	if err := c.begin(); err != nil {
		return nil, nil, err
	}
	defer c.end()

	if err := c.applyTimeouts(); err != nil {
		return nil, nil, err
	}
	if err := c.writer.WriteCommand(proto.ComStmtExecute, body); err != nil {
		return nil, nil, err
	}

	payload, err := c.reader.ReadPacket()
	if err != nil {
		return nil, nil, ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) == 0 {
		return nil, nil, ferrors.New(ferrors.InvalidResponse{})
	}

	switch payload[0] {
	case proto.OKHeader:
		ok, err := proto.ParseOK(payload)
		if err != nil {
			return nil, nil, ferrors.New(ferrors.DecodingError{})
		}
		return nil, &Result{AffectedRows: ok.AffectedRows, LastInsertID: ok.LastInsertID}, nil
	case proto.ERRHeader:
		return nil, nil, ferrors.DecodeServerError(payload[1:])
	default:
		rows, err := c.readBinaryResultSet(payload)
		return rows, nil, err
	}
}

// bind validates the arguments against the statement's declared parameter
// types and encodes the COM_STMT_EXECUTE body. Validation rejects before
// any bytes reach the wire. Placeholders without a bound argument are sent
// as NULL and left for the server to judge.
func (s *Stmt) bind(args []interface{}) ([]byte, error) {
	if len(args) > len(s.params) {
		return nil, ferrors.New(ferrors.TooManyParametersBound{})
	}

	types := make([]proto.FieldType, len(args))
	for i, arg := range args {
		got, err := bindType(arg)
		if err != nil {
			return nil, err
		}
		if expected := s.params[i].Type; !bindCompatible(got, expected) {
			return nil, ferrors.New(ferrors.InvalidTypeBound{Got: got, Expected: expected})
		}
		types[i] = got
	}

	body := make([]byte, 0, 16+len(args)*10)
	body = binary.LittleEndian.AppendUint32(body, s.id)
	// flags (cursor off) and iteration count
	body = append(body, 0x00)
	body = binary.LittleEndian.AppendUint32(body, 1)

	if len(s.params) > 0 {
		nullBitmap := make([]byte, (len(s.params)+7)/8)
		for i := range s.params {
			if i >= len(args) || args[i] == nil {
				nullBitmap[i/8] |= 1 << (uint(i) % 8)
			}
		}
		body = append(body, nullBitmap...)
		body = append(body, 0x01) // new params bound

		for i := range s.params {
			if i < len(args) {
				body = append(body, byte(types[i]), 0x00)
			} else {
				body = append(body, byte(proto.TypeNull), 0x00)
			}
		}

		for i, arg := range args {
			if arg == nil {
				continue
			}
			encoded, err := encodeBindValue(types[i], arg)
			if err != nil {
				return nil, err
			}
			body = append(body, encoded...)
		}
	}

	return body, nil
}

// bindType maps a Go value onto the wire type used to send it.
func bindType(arg interface{}) (proto.FieldType, error) {
	switch arg.(type) {
	case nil:
		return proto.TypeNull, nil
	case bool:
		return proto.TypeTiny, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return proto.TypeLongLong, nil
	case float32, float64:
		return proto.TypeDouble, nil
	case string:
		return proto.TypeVarString, nil
	case []byte:
		return proto.TypeBlob, nil
	case time.Time:
		return proto.TypeDatetime, nil
	default:
		return 0, ferrors.New(ferrors.Unsupported{})
	}
}

// bindCompatible reports whether a value sent as got satisfies a
// placeholder declared as expected. A TypeNull declaration means the
// server did not constrain the placeholder.
func bindCompatible(got, expected proto.FieldType) bool {
	if got == proto.TypeNull || expected == proto.TypeNull {
		return true
	}

	switch expected {
	case proto.TypeTiny, proto.TypeShort, proto.TypeInt24, proto.TypeLong,
		proto.TypeLongLong, proto.TypeYear, proto.TypeBit:
		return got == proto.TypeLongLong || got == proto.TypeTiny
	case proto.TypeFloat, proto.TypeDouble, proto.TypeDecimal, proto.TypeNewDecimal:
		return got == proto.TypeDouble || got == proto.TypeLongLong
	case proto.TypeVarchar, proto.TypeVarString, proto.TypeString,
		proto.TypeBlob, proto.TypeTinyBlob, proto.TypeMediumBlob, proto.TypeLongBlob,
		proto.TypeEnum, proto.TypeSet, proto.TypeJSON, proto.TypeGeometry:
		return got == proto.TypeVarString || got == proto.TypeBlob
	case proto.TypeDate, proto.TypeTime, proto.TypeDatetime, proto.TypeTimestamp:
		return got == proto.TypeDatetime || got == proto.TypeVarString
	default:
		return false
	}
}

// encodeBindValue encodes one non-NULL argument in its binary form.
func encodeBindValue(t proto.FieldType, arg interface{}) ([]byte, error) {
	switch t {
	case proto.TypeTiny:
		if arg.(bool) {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil
	case proto.TypeLongLong:
		var v uint64
		switch n := arg.(type) {
		case int:
			v = uint64(n)
		case int8:
			v = uint64(n)
		case int16:
			v = uint64(n)
		case int32:
			v = uint64(n)
		case int64:
			v = uint64(n)
		case uint:
			v = uint64(n)
		case uint8:
			v = uint64(n)
		case uint16:
			v = uint64(n)
		case uint32:
			v = uint64(n)
		case uint64:
			v = n
		}
		return binary.LittleEndian.AppendUint64(nil, v), nil
	case proto.TypeDouble:
		var f float64
		switch n := arg.(type) {
		case float32:
			f = float64(n)
		case float64:
			f = n
		}
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)), nil
	case proto.TypeVarString:
		return lenEncBytes([]byte(arg.(string))), nil
	case proto.TypeBlob:
		return lenEncBytes(arg.([]byte)), nil
	case proto.TypeDatetime:
		return encodeBinaryTimestamp(arg.(time.Time)), nil
	default:
		return nil, ferrors.New(ferrors.Unsupported{})
	}
}

// encodeBinaryTimestamp emits the binary datetime layout: a length byte
// followed by little-endian year, month, day, time fields and, when the
// value carries sub-second precision, microseconds.
func encodeBinaryTimestamp(t time.Time) []byte {
	out := make([]byte, 1, 12)
	out = binary.LittleEndian.AppendUint16(out, uint16(t.Year()))
	out = append(out, byte(t.Month()), byte(t.Day()))
	out = append(out, byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
	if micro := t.Nanosecond() / 1000; micro != 0 {
		out = binary.LittleEndian.AppendUint32(out, uint32(micro))
	}
	out[0] = byte(len(out) - 1)
	return out
}

// lenEncBytes prefixes data with its length-encoded size.
func lenEncBytes(data []byte) []byte {
	n := uint64(len(data))
	var out []byte
	switch {
	case n < 0xFB:
		out = []byte{byte(n)}
	case n <= math.MaxUint16:
		out = []byte{0xFC, byte(n), byte(n >> 8)}
	case n <= 0xFFFFFF:
		out = []byte{0xFD, byte(n), byte(n >> 8), byte(n >> 16)}
	default:
		out = binary.LittleEndian.AppendUint64([]byte{0xFE}, n)
	}
	return append(out, data...)
}

// readBinaryResultSet reads column definitions and binary-protocol rows,
// starting from the column-count packet already in hand.
func (c *connection) readBinaryResultSet(countPayload []byte) (*Rows, error) {
	buf := proto.NewBuffer(countPayload)
	columnCount, null, err := buf.ReadLenEncInt()
	if err != nil || null || buf.Remaining() != 0 {
		return nil, ferrors.New(ferrors.ParsingError{})
	}

	cols := make([]proto.Column, 0, columnCount)
	for i := uint64(0); i < columnCount; i++ {
		payload, err := c.reader.ReadPacket()
		if err != nil {
			return nil, ferrors.New(ferrors.InvalidPacket{})
		}
		col, err := proto.ParseColumn(payload)
		if err != nil {
			return nil, ferrors.New(ferrors.InvalidPacket{})
		}
		cols = append(cols, *col)
	}

	payload, err := c.reader.ReadPacket()
	if err != nil {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) > 0 && payload[0] == proto.EOFHeader && len(payload) < 9 {
		payload, err = c.reader.ReadPacket()
		if err != nil {
			return nil, ferrors.New(ferrors.InvalidPacket{})
		}
	}

	var data [][]interface{}
	for {
		if len(payload) == 0 {
			return nil, ferrors.New(ferrors.InvalidResponse{})
		}
		if payload[0] == proto.ERRHeader {
			return nil, ferrors.DecodeServerError(payload[1:])
		}
		if payload[0] == proto.EOFHeader && len(payload) < 9 {
			break
		}

		row, err := parseBinaryRow(payload, cols)
		if err != nil {
			return nil, err
		}
		data = append(data, row)

		if payload, err = c.reader.ReadPacket(); err != nil {
			return nil, ferrors.New(ferrors.InvalidPacket{})
		}
	}

	return &Rows{Cols: cols, Data: data}, nil
}

// parseBinaryRow parses one binary-protocol row. The null bitmap for row
// packets is offset by two bits.
func parseBinaryRow(payload []byte, cols []proto.Column) ([]interface{}, error) {
	buf := proto.NewBuffer(payload)

	header, err := buf.ReadByte()
	if err != nil || header != 0x00 {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}

	bitmap, err := buf.ReadBytes((len(cols) + 7 + 2) / 8)
	if err != nil {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}

	row := make([]interface{}, 0, len(cols))
	for i, col := range cols {
		bit := i + 2
		if bitmap[bit/8]&(1<<(uint(bit)%8)) != 0 {
			row = append(row, nil)
			continue
		}

		value, err := decodeBinaryValue(buf, col.Type)
		if err != nil {
			return nil, err
		}
		row = append(row, value)
	}

	return row, nil
}

// decodeBinaryValue decodes one non-NULL binary-protocol column value.
func decodeBinaryValue(buf *proto.Buffer, t proto.FieldType) (interface{}, error) {
	switch t {
	case proto.TypeTiny:
		v, err := buf.ReadByte()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return int64(int8(v)), nil
	case proto.TypeShort, proto.TypeYear:
		v, err := buf.ReadUint16()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return int64(int16(v)), nil
	case proto.TypeInt24, proto.TypeLong:
		v, err := buf.ReadUint32()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return int64(int32(v)), nil
	case proto.TypeLongLong:
		v, err := buf.ReadUint64()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return int64(v), nil
	case proto.TypeFloat:
		v, err := buf.ReadUint32()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return float64(math.Float32frombits(v)), nil
	case proto.TypeDouble:
		v, err := buf.ReadUint64()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return math.Float64frombits(v), nil
	case proto.TypeVarchar, proto.TypeVarString, proto.TypeString,
		proto.TypeEnum, proto.TypeSet, proto.TypeJSON, proto.TypeDecimal,
		proto.TypeNewDecimal, proto.TypeBit, proto.TypeGeometry:
		v, _, err := buf.ReadLenEncString()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return v, nil
	case proto.TypeBlob, proto.TypeTinyBlob, proto.TypeMediumBlob, proto.TypeLongBlob:
		v, _, err := buf.ReadLenEncBytes()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		return append([]byte(nil), v...), nil
	case proto.TypeDate, proto.TypeDatetime, proto.TypeTimestamp:
		return decodeBinaryTimestamp(buf)
	case proto.TypeTime:
		return decodeBinaryTime(buf)
	default:
		return nil, ferrors.New(ferrors.DecodingError{})
	}
}

func decodeBinaryTimestamp(buf *proto.Buffer) (interface{}, error) {
	length, err := buf.ReadByte()
	if err != nil {
		return nil, ferrors.New(ferrors.ParsingError{})
	}

	data, err := buf.ReadBytes(int(length))
	if err != nil {
		return nil, ferrors.New(ferrors.ParsingError{})
	}

	switch length {
	case 0:
		return "0000-00-00 00:00:00", nil
	case 4:
		return fmt.Sprintf("%04d-%02d-%02d",
			binary.LittleEndian.Uint16(data), data[2], data[3]), nil
	case 7:
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
			binary.LittleEndian.Uint16(data), data[2], data[3],
			data[4], data[5], data[6]), nil
	case 11:
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d",
			binary.LittleEndian.Uint16(data), data[2], data[3],
			data[4], data[5], data[6],
			binary.LittleEndian.Uint32(data[7:])), nil
	default:
		return nil, ferrors.New(ferrors.DecodingError{})
	}
}

func decodeBinaryTime(buf *proto.Buffer) (interface{}, error) {
	length, err := buf.ReadByte()
	if err != nil {
		return nil, ferrors.New(ferrors.ParsingError{})
	}

	data, err := buf.ReadBytes(int(length))
	if err != nil {
		return nil, ferrors.New(ferrors.ParsingError{})
	}

	switch length {
	case 0:
		return "00:00:00", nil
	case 8, 12:
		sign := ""
		if data[0] == 1 {
			sign = "-"
		}
		hours := binary.LittleEndian.Uint32(data[1:])*24 + uint32(data[5])
		return fmt.Sprintf("%s%02d:%02d:%02d", sign, hours, data[6], data[7]), nil
	default:
		return nil, ferrors.New(ferrors.DecodingError{})
	}
}
