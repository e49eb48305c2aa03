package sdk

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"github.com/gear6io/ferret/pkg/proto"
)

// Rows represents query results
type Rows struct {
	Cols    []proto.Column
	Data    [][]interface{}
	Current int
	Closed  bool
	onClose func()
}

// Row represents a single row result
type Row struct {
	rows *Rows
	err  error
}

// Scan scans the row into the provided values
func (r *Row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if r.rows == nil {
		return errors.New("no rows in result set")
	}
	defer r.rows.Close()
	return r.rows.Scan(dest...)
}

// Err returns the deferred error from building the row, if any
func (r *Row) Err() error {
	return r.err
}

// Next advances to the next row
func (r *Rows) Next() bool {
	if r.Closed || r.Current >= len(r.Data) {
		return false
	}
	r.Current++
	return true
}

// Columns returns the column names
func (r *Rows) Columns() ([]string, error) {
	if r.Closed {
		return nil, errors.New("rows are closed")
	}

	names := make([]string, len(r.Cols))
	for i, col := range r.Cols {
		names[i] = col.Name
	}
	return names, nil
}

// ColumnTypes returns the declared field types of the resultset
func (r *Rows) ColumnTypes() ([]proto.FieldType, error) {
	if r.Closed {
		return nil, errors.New("rows are closed")
	}

	types := make([]proto.FieldType, len(r.Cols))
	for i, col := range r.Cols {
		types[i] = col.Type
	}
	return types, nil
}

// Close closes the rows
func (r *Rows) Close() error {
	if r.Closed {
		return nil
	}
	r.Closed = true
	if r.onClose != nil {
		r.onClose()
	}
	return nil
}

// Scan scans the current row into the provided values
func (r *Rows) Scan(dest ...interface{}) error {
	if r.Closed {
		return errors.New("rows are closed")
	}
	if r.Current <= 0 || r.Current > len(r.Data) {
		return errors.New("no current row")
	}

	row := r.Data[r.Current-1]
	if len(dest) != len(row) {
		return errors.New("destination count does not match column count")
	}

	for i, val := range row {
		if err := scanValue(dest[i], val); err != nil {
			return errors.Wrapf(err, "column %d", i)
		}
	}

	return nil
}

// scanValue converts a single wire value into a caller destination. Text
// protocol rows carry strings; binary protocol rows carry typed values.
func scanValue(dest, val interface{}) error {
	if val == nil {
		switch d := dest.(type) {
		case *interface{}:
			*d = nil
			return nil
		case *string:
			*d = ""
			return nil
		default:
			return errors.Errorf("cannot scan NULL into %T", dest)
		}
	}

	switch d := dest.(type) {
	case *interface{}:
		*d = val
		return nil
	case *string:
		switch v := val.(type) {
		case string:
			*d = v
		case []byte:
			*d = string(v)
		default:
			return errors.Errorf("cannot scan %T into *string", val)
		}
		return nil
	case *[]byte:
		switch v := val.(type) {
		case []byte:
			*d = v
		case string:
			*d = []byte(v)
		default:
			return errors.Errorf("cannot scan %T into *[]byte", val)
		}
		return nil
	case *int:
		n, err := toInt64(val)
		*d = int(n)
		return err
	case *int64:
		n, err := toInt64(val)
		*d = n
		return err
	case *uint32:
		n, err := toInt64(val)
		*d = uint32(n)
		return err
	case *uint64:
		n, err := toInt64(val)
		*d = uint64(n)
		return err
	case *float64:
		switch v := val.(type) {
		case float64:
			*d = v
			return nil
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return errors.Wrapf(err, "parse float64 from '%s'", v)
			}
			*d = parsed
			return nil
		default:
			return errors.Errorf("cannot scan %T into *float64", val)
		}
	case *bool:
		switch v := val.(type) {
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "parse bool from '%s'", v)
			}
			*d = parsed
			return nil
		case int64:
			*d = v != 0
			return nil
		default:
			return errors.Errorf("cannot scan %T into *bool", val)
		}
	case *time.Time:
		s, ok := val.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into *time.Time", val)
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				*d = parsed
				return nil
			}
		}
		return errors.Errorf("cannot parse time from '%s'", s)
	default:
		return errors.Errorf("unsupported scan destination type: %T", dest)
	}
}

func toInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse int from '%s'", v)
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("cannot scan %T into an integer", val)
	}
}
