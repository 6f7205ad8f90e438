package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/dataerr"
	"github.com/jgrocha/BluetoothChat/logger"
)

// Values maps column names to the values of one row
type Values map[string]interface{}

// Query selects rows of kind. An empty projection selects every column, an
// empty filter every row, and an empty sort leaves the order to the
// database. The returned cursor must be closed.
func (s *Store) Query(ctx context.Context, kind contract.Kind, projection []string, filter string, args []interface{}, sortOrder string) (*Cursor, error) {
	if !kind.Valid() {
		return nil, dataerr.NewQueryFailed(fmt.Sprintf("unknown kind %s", kind), nil)
	}

	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	q := db.Table(kind.Table())
	if len(projection) > 0 {
		q = q.Select(projection)
	}
	if filter != "" {
		q = q.Where(filter, args...)
	}
	if sortOrder != "" {
		q = q.Order(sortOrder)
	}

	rows, err := q.Rows()
	if err != nil {
		return nil, dataerr.NewQueryFailed("query on "+kind.Table()+" failed", err)
	}
	return newCursor(db, rows)
}

// Insert adds one row and returns its id
func (s *Store) Insert(ctx context.Context, kind contract.Kind, values Values) (int64, error) {
	cols, err := insertColumns(kind, values)
	if err != nil {
		return 0, err
	}

	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id int64
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = insertRow(ctx, tx, kind, cols, values)
		return err
	})
	if err != nil {
		return 0, classify(err, "insert into "+kind.Table()+" failed", dataerr.NewInsertFailed)
	}
	return id, nil
}

// BulkInsert adds many rows and returns how many were inserted.
//
// Temperature readings are inserted in a single transaction: if any row
// fails nothing is kept and the count is 0. Other kinds are inserted one
// row at a time; the first failure stops the batch and the rows already
// inserted stay.
func (s *Store) BulkInsert(ctx context.Context, kind contract.Kind, rows []Values) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if !kind.SupportsBulkInsert() {
		return s.insertEach(ctx, kind, rows)
	}

	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = db.Transaction(func(tx *gorm.DB) error {
		for i, values := range rows {
			cols, err := insertColumns(kind, values)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			if _, err := insertRow(ctx, tx, kind, cols, values); err != nil {
				return fmt.Errorf("row %d: %w", i, classify(err, "insert failed", dataerr.NewInsertFailed))
			}
		}
		return nil
	})
	if err != nil {
		logger.Warnf("Bulk insert of %d %s rows rolled back: %v", len(rows), kind.Table(), err)
		return 0, dataerr.NewInsertFailed(fmt.Sprintf("bulk insert into %s rolled back", kind.Table()), err)
	}

	logger.Debugf("Bulk inserted %d %s rows", len(rows), kind.Table())
	return len(rows), nil
}

func (s *Store) insertEach(ctx context.Context, kind contract.Kind, rows []Values) (int, error) {
	inserted := 0
	for _, values := range rows {
		if _, err := s.Insert(ctx, kind, values); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// Update sets values on every row matching filter and returns the number
// of rows changed
func (s *Store) Update(ctx context.Context, kind contract.Kind, values Values, filter string, args []interface{}) (int64, error) {
	if !kind.Valid() {
		return 0, dataerr.NewUpdateFailed(fmt.Sprintf("unknown kind %s", kind), nil)
	}
	if len(values) == 0 {
		return 0, dataerr.NewUpdateFailed("no values to update", nil)
	}
	for col := range values {
		if col == contract.ColumnID {
			return 0, dataerr.NewConstraintViolation("column "+col+" cannot be updated", nil)
		}
		if _, ok := kind.Column(col); !ok {
			return 0, dataerr.NewConstraintViolation(fmt.Sprintf("unknown column %s in %s", col, kind.Table()), nil)
		}
	}

	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if filter == "" {
		filter = "1 = 1"
	}
	updates := make(map[string]interface{}, len(values))
	for col, v := range values {
		updates[col] = storable(v)
	}
	result := db.Table(kind.Table()).Where(filter, args...).Updates(updates)
	if result.Error != nil {
		return 0, classify(result.Error, "update of "+kind.Table()+" failed", dataerr.NewUpdateFailed)
	}
	return result.RowsAffected, nil
}

// Delete removes every row matching filter and returns the number of rows
// removed. Sensors still referenced by readings or calibration events
// cannot be deleted.
func (s *Store) Delete(ctx context.Context, kind contract.Kind, filter string, args []interface{}) (int64, error) {
	if !kind.Valid() {
		return 0, dataerr.NewDeleteFailed(fmt.Sprintf("unknown kind %s", kind), nil)
	}

	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := deleteRows(db, kind, filter, args)
	if err != nil {
		return 0, classify(err, "delete from "+kind.Table()+" failed", dataerr.NewDeleteFailed)
	}
	return n, nil
}

// DeleteAll empties every table, children first, and returns the total
// number of rows removed
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var total int64
	err = db.Transaction(func(tx *gorm.DB) error {
		for i := len(contract.Kinds) - 1; i >= 0; i-- {
			n, err := deleteRows(tx, contract.Kinds[i], "", nil)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, classify(err, "delete all failed", dataerr.NewDeleteFailed)
	}
	return total, nil
}

func deleteRows(db *gorm.DB, kind contract.Kind, filter string, args []interface{}) (int64, error) {
	if filter == "" {
		filter = "1 = 1"
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", db.Statement.Quote(kind.Table()), filter)
	result := db.Exec(stmt, args...)
	return result.RowsAffected, result.Error
}

// insertColumns validates values against the columns of kind and returns
// the column names in a stable order
func insertColumns(kind contract.Kind, values Values) ([]string, error) {
	if !kind.Valid() {
		return nil, dataerr.NewInsertFailed(fmt.Sprintf("unknown kind %s", kind), nil)
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		if _, ok := kind.Column(col); !ok {
			return nil, dataerr.NewConstraintViolation(fmt.Sprintf("unknown column %s in %s", col, kind.Table()), nil)
		}
		cols = append(cols, col)
	}

	var missing []string
	for _, col := range kind.RequiredColumns() {
		if v, ok := values[col]; !ok || v == nil {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, dataerr.NewConstraintViolation(
			fmt.Sprintf("missing required columns in %s: %s", kind.Table(), strings.Join(missing, ", ")), nil)
	}

	sort.Strings(cols)
	return cols, nil
}

// insertRow runs one INSERT inside tx and returns the generated id. Drivers
// without LastInsertId support get a RETURNING clause instead.
func insertRow(ctx context.Context, tx *gorm.DB, kind contract.Kind, cols []string, values Values) (int64, error) {
	dialect := tx.Dialector.Name()

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		quoted[i] = tx.Statement.Quote(col)
		marks[i] = placeholder(dialect, i)
		args[i] = storable(values[col])
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tx.Statement.Quote(kind.Table()), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	var id int64
	pool := tx.Statement.ConnPool
	if dialect == "postgres" {
		stmt += " RETURNING " + tx.Statement.Quote(contract.ColumnID)
		if err := pool.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return 0, translate(tx, err)
		}
	} else {
		res, err := pool.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, translate(tx, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	}

	if id <= 0 {
		return 0, dataerr.NewInsertFailed(fmt.Sprintf("insert into %s returned id %d", kind.Table(), id), nil)
	}
	return id, nil
}

// storable writes times as UTC text in TimeLayout so that day ranges
// compare the same way whatever zone the caller used
func storable(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(TimeLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(TimeLayout)
	}
	return v
}

func placeholder(dialect string, i int) string {
	if dialect == "postgres" {
		return fmt.Sprintf("$%d", i+1)
	}
	return "?"
}

// translate maps a driver error to gorm's portable errors where the
// dialector knows how
func translate(tx *gorm.DB, err error) error {
	if t, ok := tx.Dialector.(gorm.ErrorTranslator); ok {
		if translated := t.Translate(err); translated != nil && translated != err {
			return fmt.Errorf("%w: %v", translated, err)
		}
	}
	return err
}

// classify wraps err in a constraint violation when the database rejected
// the statement on a constraint, otherwise in the fallback kind. Errors
// that are already classified pass through.
func classify(err error, msg string, fallback func(string, error) *dataerr.Error) error {
	var de *dataerr.Error
	if errors.As(err, &de) {
		return err
	}
	if isConstraintError(err) {
		return dataerr.NewConstraintViolation(msg, err)
	}
	return fallback(msg, err)
}

func isConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return true
	}
	return false
}
