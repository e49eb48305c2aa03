package sdk

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"

	ferrors "github.com/gear6io/ferret/pkg/errors"
	"github.com/gear6io/ferret/pkg/proto"
)

// connection represents a pooled connection
type connection struct {
	conn      net.Conn
	opt       *Options
	connID    int
	seq       byte
	reader    *Reader
	writer    *Writer
	createdAt time.Time
	lastUsed  time.Time
	busy      atomic.Bool
	bad       bool
	mu        sync.Mutex
}

func newConnection(conn net.Conn, opt *Options, connID int) *connection {
	c := &connection{
		conn:      conn,
		opt:       opt,
		connID:    connID,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}
	c.reader = NewReader(conn, &c.seq)
	c.writer = NewWriter(conn, &c.seq)
	return c
}

// begin marks the connection busy for a single in-flight operation. A
// connection serves one operation at a time; concurrent use is caller
// misuse, not a condition to wait out.
func (c *connection) begin() error {
	if !c.busy.CompareAndSwap(false, true) {
		return ferrors.New(ferrors.ConnectionInUse{})
	}
	return nil
}

func (c *connection) end() {
	c.busy.Store(false)
}

func (c *connection) isBad() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bad
}

func (c *connection) markBad() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bad = true
}

func (c *connection) updateLastUsed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now()
}

func (c *connection) close() error {
	return c.conn.Close()
}

// handshake performs the initial handshake and authentication exchange.
func (c *connection) handshake(ctx context.Context) error {
	if c.opt.DialTimeout > 0 {
		c.reader.SetReadTimeout(c.opt.DialTimeout)
		defer c.reader.ClearReadTimeout()
	}

	c.seq = 0
	payload, err := c.reader.ReadPacket()
	if err != nil {
		// Socket-level failure, not a malformed handshake.
		return errors.Wrap(err, "read server handshake")
	}

	// A server may refuse the connection with an ERR packet before any
	// handshake takes place.
	if len(payload) > 0 && payload[0] == proto.ERRHeader {
		return ferrors.DecodeServerError(payload[1:])
	}

	hs, err := proto.ParseHandshake(payload)
	if err != nil {
		return ferrors.New(ferrors.InvalidHandshake{})
	}

	if hs.Capabilities&proto.CapProtocol41 == 0 {
		return ferrors.New(ferrors.Unsupported{})
	}
	if hs.AuthPluginName != "" && hs.AuthPluginName != proto.NativePasswordPlugin {
		return ferrors.New(ferrors.Unsupported{})
	}

	response := proto.BuildHandshakeResponse(
		c.opt.Auth.Username,
		c.opt.Auth.Password,
		c.opt.Auth.Database,
		hs.AuthPluginData,
	)
	if err := c.writer.WritePacket(response); err != nil {
		return err
	}

	return c.readAuthResult()
}

// readAuthResult reads the server's verdict on the handshake response.
func (c *connection) readAuthResult() error {
	payload, err := c.reader.ReadPacket()
	if err != nil {
		return ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) == 0 {
		return ferrors.New(ferrors.InvalidResponse{})
	}

	switch payload[0] {
	case proto.OKHeader:
		return nil
	case proto.ERRHeader:
		serverErr := ferrors.DecodeServerError(payload[1:])
		if q, ok := serverErr.Problem().(ferrors.InvalidQuery); ok && q.Code == 1045 {
			return ferrors.New(ferrors.InvalidCredentials{})
		}
		return serverErr
	case proto.EOFHeader:
		// Auth-method switch; only mysql_native_password is implemented.
		return ferrors.New(ferrors.Unsupported{})
	default:
		return ferrors.New(ferrors.InvalidResponse{})
	}
}

// ping sends a ping command
func (c *connection) ping(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.applyTimeouts(); err != nil {
		return err
	}
	if err := c.writer.WriteCommand(proto.ComPing, nil); err != nil {
		return err
	}

	payload, err := c.reader.ReadPacket()
	if err != nil {
		return ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) == 0 {
		return ferrors.New(ferrors.InvalidResponse{})
	}

	switch payload[0] {
	case proto.OKHeader:
		return nil
	case proto.ERRHeader:
		return ferrors.DecodeServerError(payload[1:])
	default:
		return ferrors.New(ferrors.InvalidResponse{})
	}
}

// Result holds the outcome of a statement that returns no rows.
type Result struct {
	AffectedRows uint64
	LastInsertID uint64
}

// exec runs a statement and reads its OK response. Statements that return
// a resultset are drained and reported as an empty result.
func (c *connection) exec(ctx context.Context, query string) (*Result, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	if err := c.applyTimeouts(); err != nil {
		return nil, err
	}
	if err := c.writer.WriteCommand(proto.ComQuery, []byte(query)); err != nil {
		return nil, err
	}

	payload, err := c.reader.ReadPacket()
	if err != nil {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) == 0 {
		return nil, ferrors.New(ferrors.InvalidResponse{})
	}

	switch payload[0] {
	case proto.OKHeader:
		ok, err := proto.ParseOK(payload)
		if err != nil {
			return nil, ferrors.New(ferrors.DecodingError{})
		}
		return &Result{AffectedRows: ok.AffectedRows, LastInsertID: ok.LastInsertID}, nil
	case proto.ERRHeader:
		return nil, ferrors.DecodeServerError(payload[1:])
	default:
		if _, err := c.readResultSet(payload); err != nil {
			return nil, err
		}
		return &Result{}, nil
	}
}

// query runs a query and materializes its resultset.
func (c *connection) query(ctx context.Context, query string) (*Rows, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	if err := c.applyTimeouts(); err != nil {
		return nil, err
	}
	if err := c.writer.WriteCommand(proto.ComQuery, []byte(query)); err != nil {
		return nil, err
	}

	payload, err := c.reader.ReadPacket()
	if err != nil {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}
	if len(payload) == 0 {
		return nil, ferrors.New(ferrors.InvalidResponse{})
	}

	switch payload[0] {
	case proto.OKHeader:
		// Statement without a resultset.
		return &Rows{}, nil
	case proto.ERRHeader:
		return nil, ferrors.DecodeServerError(payload[1:])
	default:
		return c.readResultSet(payload)
	}
}

// readResultSet reads column definitions and text-protocol rows, starting
// from the column-count packet already in hand.
func (c *connection) readResultSet(countPayload []byte) (*Rows, error) {
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

	// Column block terminator (absent on servers that deprecate EOF).
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

		row, err := parseTextRow(payload, len(cols))
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

// parseTextRow parses one text-protocol row into column values.
func parseTextRow(payload []byte, columns int) ([]interface{}, error) {
	buf := proto.NewBuffer(payload)
	row := make([]interface{}, 0, columns)

	for i := 0; i < columns; i++ {
		value, null, err := buf.ReadLenEncString()
		if err != nil {
			return nil, ferrors.New(ferrors.ParsingError{})
		}
		if null {
			row = append(row, nil)
		} else {
			row = append(row, value)
		}
	}

	if buf.Remaining() != 0 {
		return nil, ferrors.New(ferrors.InvalidPacket{})
	}
	return row, nil
}

func (c *connection) applyTimeouts() error {
	if c.opt.WriteTimeout > 0 {
		if err := c.writer.SetWriteTimeout(c.opt.WriteTimeout); err != nil {
			return err
		}
	}
	if c.opt.ReadTimeout > 0 {
		return c.reader.SetReadTimeout(c.opt.ReadTimeout)
	}
	return nil
}
