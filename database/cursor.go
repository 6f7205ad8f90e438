package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/jgrocha/BluetoothChat/dataerr"
)

// TimeLayout is how datetime columns are rendered as strings
const TimeLayout = "2006-01-02 15:04:05"

// Cursor iterates over the result of a query. It is forward-only and must
// be closed; Close is idempotent and Next closes it once exhausted.
type Cursor struct {
	db      *gorm.DB
	rows    *sql.Rows
	columns []string
	closed  bool
	err     error
}

func newCursor(db *gorm.DB, rows *sql.Rows) (*Cursor, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, dataerr.NewQueryFailed("failed to read result columns", err)
	}
	return &Cursor{db: db, rows: rows, columns: cols}, nil
}

// Columns returns the column names of the result
func (c *Cursor) Columns() []string {
	return append([]string(nil), c.columns...)
}

// Next advances to the next row
func (c *Cursor) Next() bool {
	if c.closed {
		return false
	}
	if c.rows.Next() {
		return true
	}
	c.err = c.rows.Err()
	_ = c.Close()
	return false
}

// Row returns the current row keyed by column name
func (c *Cursor) Row() (Row, error) {
	if c.closed {
		return nil, dataerr.NewQueryFailed("cursor is closed", nil)
	}
	vals := make([]interface{}, len(c.columns))
	ptrs := make([]interface{}, len(c.columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, dataerr.NewQueryFailed("failed to scan row", err)
	}

	row := make(Row, len(c.columns))
	for i, col := range c.columns {
		if b, ok := vals[i].([]byte); ok {
			row[col] = string(b)
			continue
		}
		row[col] = vals[i]
	}
	return row, nil
}

// Scan copies the current row into a model struct such as models.Sensor
func (c *Cursor) Scan(dest interface{}) error {
	if c.closed {
		return dataerr.NewQueryFailed("cursor is closed", nil)
	}
	if err := c.db.ScanRows(c.rows, dest); err != nil {
		return dataerr.NewQueryFailed("failed to scan row", err)
	}
	return nil
}

// Err returns the error that ended iteration, if any
func (c *Cursor) Err() error {
	if c.err != nil {
		return dataerr.NewQueryFailed("iteration failed", c.err)
	}
	return nil
}

// Close releases the underlying result set
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// All reads every remaining row and closes the cursor
func (c *Cursor) All() ([]Row, error) {
	defer c.Close()

	var out []Row
	for c.Next() {
		row, err := c.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, c.Err()
}

// Row is one result row keyed by column name
type Row map[string]interface{}

// Has reports whether the row carries col
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// IsNull reports whether col is absent or NULL
func (r Row) IsNull(col string) bool {
	return r[col] == nil
}

// String renders col as text. NULL renders as the empty string.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case time.Time:
		return v.Format(TimeLayout)
	default:
		return cast.ToString(v)
	}
}

// Int64 converts col to an integer
func (r Row) Int64(col string) (int64, error) {
	v, err := cast.ToInt64E(r[col])
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}

// Float64 converts col to a float
func (r Row) Float64(col string) (float64, error) {
	v, err := cast.ToFloat64E(r[col])
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}

// Bool converts col to a boolean; numeric columns are true when non-zero
func (r Row) Bool(col string) (bool, error) {
	v, err := cast.ToBoolE(r[col])
	if err != nil {
		return false, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}

// Time converts col to a time
func (r Row) Time(col string) (time.Time, error) {
	v, err := cast.ToTimeE(r[col])
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: %w", col, err)
	}
	return v, nil
}
