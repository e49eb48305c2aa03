package sdk_test

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/gear6io/ferret/pkg/proto"
)

// MockServer simulates a protocol-v10 database server for testing.
type MockServer struct {
	listener net.Listener
	addr     string
	quit     chan struct{}

	// Password the server accepts; anything else is rejected with an
	// access-denied ERR packet.
	Password string
}

// NewMockServer creates a new mock server
func NewMockServer() (*MockServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	server := &MockServer{
		listener: listener,
		addr:     listener.Addr().String(),
		quit:     make(chan struct{}),
		Password: "secret",
	}

	go server.serve()
	return server, nil
}

// Addr returns the server address
func (s *MockServer) Addr() string {
	return s.addr
}

// Close stops the server
func (s *MockServer) Close() error {
	close(s.quit)
	return s.listener.Close()
}

func (s *MockServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				continue
			}
		}
		go s.handle(conn)
	}
}

var mockScramble = []byte("abcdefgh0123456789ab")

func (s *MockServer) handle(conn net.Conn) {
	defer conn.Close()

	if err := s.writeHandshake(conn); err != nil {
		return
	}

	// Handshake response.
	response, _, err := readFrame(conn)
	if err != nil {
		return
	}
	if !s.authOK(response) {
		writeFrame(conn, 2, errPayload(1045, "28000", "Access denied for user"))
		return
	}
	writeFrame(conn, 2, []byte{proto.OKHeader, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00})

	stmts := make(map[uint32]string)
	var stmtID uint32

	for {
		payload, _, err := readFrame(conn)
		if err != nil || len(payload) == 0 {
			return
		}

		switch payload[0] {
		case proto.ComPing:
			writeFrame(conn, 1, []byte{proto.OKHeader, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00})
		case proto.ComQuery:
			s.handleQuery(conn, string(payload[1:]))
		case proto.ComStmtPrepare:
			s.handleStmtPrepare(conn, string(payload[1:]), stmts, &stmtID)
		case proto.ComStmtExecute:
			s.handleStmtExecute(conn, payload[1:], stmts)
		case proto.ComStmtClose:
			// No response.
			if len(payload) >= 5 {
				delete(stmts, binary.LittleEndian.Uint32(payload[1:5]))
			}
		case proto.ComQuit:
			return
		default:
			writeFrame(conn, 1, errPayload(1047, "08S01", "Unknown command"))
		}
	}
}

func (s *MockServer) handleQuery(conn net.Conn, query string) {
	switch {
	case strings.HasPrefix(strings.ToUpper(query), "SELECT"):
		seq := byte(1)
		// Column count.
		seq = writeFrame(conn, seq, []byte{0x02})
		seq = writeFrame(conn, seq, columnPayload("id", proto.TypeLong))
		seq = writeFrame(conn, seq, columnPayload("name", proto.TypeVarchar))
		seq = writeFrame(conn, seq, []byte{proto.EOFHeader, 0x00, 0x00, 0x02, 0x00})
		seq = writeFrame(conn, seq, textRow("1", "alice"))
		seq = writeFrame(conn, seq, textRow("2", "bob"))
		writeFrame(conn, seq, []byte{proto.EOFHeader, 0x00, 0x00, 0x02, 0x00})
	case strings.HasPrefix(strings.ToUpper(query), "INSERT"):
		// OK with 1 affected row, last insert id 7.
		writeFrame(conn, 1, []byte{proto.OKHeader, 0x01, 0x07, 0x02, 0x00, 0x00, 0x00})
	default:
		writeFrame(conn, 1, errPayload(1064, "42000", "You have an error in your SQL syntax"))
	}
}

// handleStmtPrepare answers COM_STMT_PREPARE with statement metadata.
// SELECT statements with placeholders resolve to one result column per
// placeholder; plain SELECTs resolve to the fixed id/name pair.
func (s *MockServer) handleStmtPrepare(conn net.Conn, query string, stmts map[uint32]string, stmtID *uint32) {
	upper := strings.ToUpper(query)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "INSERT") {
		writeFrame(conn, 1, errPayload(1064, "42000", "You have an error in your SQL syntax"))
		return
	}

	*stmtID++
	id := *stmtID
	stmts[id] = query

	numParams := strings.Count(query, "?")
	numCols := 0
	if strings.HasPrefix(upper, "SELECT") {
		if numParams > 0 {
			numCols = numParams
		} else {
			numCols = 2
		}
	}

	ok := []byte{proto.OKHeader}
	ok = binary.LittleEndian.AppendUint32(ok, id)
	ok = binary.LittleEndian.AppendUint16(ok, uint16(numCols))
	ok = binary.LittleEndian.AppendUint16(ok, uint16(numParams))
	ok = append(ok, 0x00)       // filler
	ok = append(ok, 0x00, 0x00) // warning count
	seq := writeFrame(conn, 1, ok)

	for i := 0; i < numParams; i++ {
		seq = writeFrame(conn, seq, columnPayload("?", proto.TypeNull))
	}
	if numParams > 0 {
		seq = writeFrame(conn, seq, []byte{proto.EOFHeader, 0x00, 0x00, 0x02, 0x00})
	}
	for i := 0; i < numCols; i++ {
		seq = writeFrame(conn, seq, columnPayload("value", proto.TypeVarchar))
	}
	if numCols > 0 {
		writeFrame(conn, seq, []byte{proto.EOFHeader, 0x00, 0x00, 0x02, 0x00})
	}
}

// handleStmtExecute decodes the COM_STMT_EXECUTE body. Statements with
// placeholders echo the decoded parameter values back as a one-row binary
// resultset, so tests see exactly what came over the wire.
func (s *MockServer) handleStmtExecute(conn net.Conn, body []byte, stmts map[uint32]string) {
	buf := proto.NewBuffer(body)
	id, err := buf.ReadUint32()
	if err != nil {
		writeFrame(conn, 1, errPayload(1210, "HY000", "Incorrect arguments to EXECUTE"))
		return
	}
	query, known := stmts[id]
	if !known {
		writeFrame(conn, 1, errPayload(1243, "HY000", "Unknown prepared statement handler"))
		return
	}
	// flags + iteration count
	if err := buf.Skip(5); err != nil {
		writeFrame(conn, 1, errPayload(1210, "HY000", "Incorrect arguments to EXECUTE"))
		return
	}

	params, err := decodeExecParams(buf, strings.Count(query, "?"))
	if err != nil {
		writeFrame(conn, 1, errPayload(1210, "HY000", "Incorrect arguments to EXECUTE"))
		return
	}

	eof := []byte{proto.EOFHeader, 0x00, 0x00, 0x02, 0x00}
	switch {
	case strings.HasPrefix(strings.ToUpper(query), "INSERT"):
		writeFrame(conn, 1, []byte{proto.OKHeader, 0x01, 0x07, 0x02, 0x00, 0x00, 0x00})
	case len(params) > 0:
		seq := writeFrame(conn, 1, []byte{byte(len(params))})
		for range params {
			seq = writeFrame(conn, seq, columnPayload("value", proto.TypeVarchar))
		}
		seq = writeFrame(conn, seq, eof)
		seq = writeFrame(conn, seq, binaryEchoRow(params))
		writeFrame(conn, seq, eof)
	default:
		seq := writeFrame(conn, 1, []byte{0x02})
		seq = writeFrame(conn, seq, columnPayload("id", proto.TypeLong))
		seq = writeFrame(conn, seq, columnPayload("name", proto.TypeVarchar))
		seq = writeFrame(conn, seq, eof)
		seq = writeFrame(conn, seq, binaryUserRow(1, "alice"))
		seq = writeFrame(conn, seq, binaryUserRow(2, "bob"))
		writeFrame(conn, seq, eof)
	}
}

// decodeExecParams reads the null bitmap, type block and bound values of a
// COM_STMT_EXECUTE body, rendering each value as text.
func decodeExecParams(buf *proto.Buffer, n int) ([]string, error) {
	if n == 0 {
		return nil, nil
	}

	bitmap, err := buf.ReadBytes((n + 7) / 8)
	if err != nil {
		return nil, err
	}
	newParams, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	if newParams != 1 {
		return nil, errors.New("missing parameter type block")
	}
	types, err := buf.ReadBytes(n * 2)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if bitmap[i/8]&(1<<(uint(i)%8)) != 0 {
			out = append(out, "NULL")
			continue
		}
		v, err := decodeExecValue(buf, proto.FieldType(types[i*2]))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeExecValue(buf *proto.Buffer, t proto.FieldType) (string, error) {
	switch t {
	case proto.TypeTiny:
		v, err := buf.ReadByte()
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(v)), nil
	case proto.TypeLongLong:
		v, err := buf.ReadUint64()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(v), 10), nil
	case proto.TypeDouble:
		v, err := buf.ReadUint64()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64), nil
	case proto.TypeVarString:
		v, _, err := buf.ReadLenEncString()
		if err != nil {
			return "", err
		}
		return v, nil
	case proto.TypeBlob:
		v, _, err := buf.ReadLenEncBytes()
		if err != nil {
			return "", err
		}
		return string(v), nil
	case proto.TypeDatetime:
		length, err := buf.ReadByte()
		if err != nil {
			return "", err
		}
		data, err := buf.ReadBytes(int(length))
		if err != nil {
			return "", err
		}
		switch length {
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
			return "", errors.Errorf("unexpected datetime length %d", length)
		}
	default:
		return "", errors.Errorf("unexpected parameter type 0x%02x", byte(t))
	}
}

// binaryUserRow builds a binary-protocol row for the fixed id/name columns.
func binaryUserRow(id uint32, name string) []byte {
	payload := []byte{0x00, 0x00} // header, null bitmap
	payload = binary.LittleEndian.AppendUint32(payload, id)
	payload = append(payload, byte(len(name)))
	payload = append(payload, name...)
	return payload
}

// binaryEchoRow builds a binary-protocol row of varchar values.
func binaryEchoRow(values []string) []byte {
	payload := []byte{0x00}
	payload = append(payload, make([]byte, (len(values)+7+2)/8)...)
	for _, v := range values {
		payload = append(payload, byte(len(v)))
		payload = append(payload, v...)
	}
	return payload
}

func (s *MockServer) writeHandshake(conn net.Conn) error {
	caps := proto.CapProtocol41 | proto.CapSecureConnection | proto.CapPluginAuth

	payload := []byte{proto.ProtocolVersion}
	payload = append(payload, "8.0.0-mock"...)
	payload = append(payload, 0x00)
	payload = binary.LittleEndian.AppendUint32(payload, 1)
	payload = append(payload, mockScramble[:8]...)
	payload = append(payload, 0x00)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(caps))
	payload = append(payload, proto.DefaultCharset)
	payload = binary.LittleEndian.AppendUint16(payload, 0x0002)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(caps>>16))
	payload = append(payload, byte(len(mockScramble)+1))
	payload = append(payload, make([]byte, 10)...)
	payload = append(payload, mockScramble[8:]...)
	payload = append(payload, 0x00)
	payload = append(payload, proto.NativePasswordPlugin...)
	payload = append(payload, 0x00)

	writeFrame(conn, 0, payload)
	return nil
}

// authOK verifies the scrambled password in a handshake response.
func (s *MockServer) authOK(response []byte) bool {
	buf := proto.NewBuffer(response)
	if err := buf.Skip(4 + 4 + 1 + 23); err != nil {
		return false
	}
	if _, err := buf.ReadStringNul(); err != nil {
		return false
	}
	authLen, err := buf.ReadByte()
	if err != nil {
		return false
	}
	auth, err := buf.ReadBytes(int(authLen))
	if err != nil {
		return false
	}

	expected := proto.ScramblePassword(s.Password, mockScramble)
	if len(auth) != len(expected) {
		return false
	}
	for i := range auth {
		if auth[i] != expected[i] {
			return false
		}
	}
	return true
}

// errPayload builds an ERR packet payload including the 0xFF marker.
func errPayload(code uint16, state, message string) []byte {
	payload := []byte{proto.ERRHeader}
	payload = binary.LittleEndian.AppendUint16(payload, code)
	payload = append(payload, proto.SQLStateMarker)
	payload = append(payload, state...)
	payload = append(payload, message...)
	return payload
}

// columnPayload builds a minimal ColumnDefinition41 payload.
func columnPayload(name string, t proto.FieldType) []byte {
	lenc := func(s string) []byte {
		return append([]byte{byte(len(s))}, s...)
	}

	payload := []byte{}
	payload = append(payload, lenc("def")...)
	payload = append(payload, lenc("mock")...)
	payload = append(payload, lenc("t")...)
	payload = append(payload, lenc("t")...)
	payload = append(payload, lenc(name)...)
	payload = append(payload, lenc(name)...)
	payload = append(payload, 0x0C)
	payload = append(payload, 0x21, 0x00)
	payload = append(payload, 0xFF, 0x00, 0x00, 0x00)
	payload = append(payload, byte(t))
	payload = append(payload, 0x00, 0x00)
	payload = append(payload, 0x00)
	return payload
}

// textRow builds a text-protocol row payload.
func textRow(values ...string) []byte {
	payload := []byte{}
	for _, v := range values {
		payload = append(payload, byte(len(v)))
		payload = append(payload, v...)
	}
	return payload
}

// readFrame reads one framed packet from the wire.
func readFrame(conn net.Conn) ([]byte, byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, 0, err
	}
	length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, 0, err
	}
	return payload, header[3], nil
}

// writeFrame writes one framed packet and returns the next sequence id.
func writeFrame(conn net.Conn, seq byte, payload []byte) byte {
	frame := []byte{
		byte(len(payload)),
		byte(len(payload) >> 8),
		byte(len(payload) >> 16),
		seq,
	}
	conn.Write(append(frame, payload...))
	return seq + 1
}
