// Package database is the relational store holding sensors, temperature
// readings and calibration events. It opens lazily, creates its tables on
// first use and serializes writers.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jgrocha/BluetoothChat/config"
	"github.com/jgrocha/BluetoothChat/contract"
	"github.com/jgrocha/BluetoothChat/dataerr"
	"github.com/jgrocha/BluetoothChat/logger"
)

type state int

const (
	stateUninitialized state = iota
	stateOpen
	stateClosed
)

// Store is a handle on the backing database. The zero value is not usable;
// create stores with New.
type Store struct {
	cfg       *config.Config
	dialector gorm.Dialector

	mu    sync.Mutex
	state state
	db    *gorm.DB

	// writeMu serializes every mutation so that concurrent writers never
	// interleave inside a transaction
	writeMu sync.Mutex
}

// New returns an unopened store for cfg
func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// newWithDialector returns a store that connects through d instead of the
// configured driver
func newWithDialector(cfg *config.Config, d gorm.Dialector) *Store {
	return &Store{cfg: cfg, dialector: d}
}

// Open connects to the database and brings the schema to the configured
// version. It is safe to call repeatedly; every operation calls it.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// conn returns a session bound to ctx, opening the store on first use
func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateOpen:
		return s.db.WithContext(ctx), nil
	case stateClosed:
		return nil, dataerr.NewStorageUnavailable("store is closed", nil)
	}

	db, err := s.connect()
	if err != nil {
		return nil, dataerr.NewStorageUnavailable("failed to connect to database", err)
	}

	if err := ensureSchema(db.WithContext(ctx), s.cfg.Store.SchemaVersion); err != nil {
		closeDB(db)
		return nil, dataerr.NewStorageUnavailable("failed to prepare schema", err)
	}

	s.db = db
	s.state = stateOpen
	logger.Printf("Database opened: %s", s.describe())
	return s.db.WithContext(ctx), nil
}

func (s *Store) connect() (*gorm.DB, error) {
	dialector := s.dialector
	if dialector == nil {
		var err error
		if dialector, err = dialectorFor(s.cfg); err != nil {
			return nil, err
		}
	}

	gormConfig := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel(s.cfg.Database.LogLevel)),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	pool := s.cfg.Database.ConnectionPool
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// dialectorFor selects the gorm dialector of the configured driver
func dialectorFor(cfg *config.Config) (gorm.Dialector, error) {
	dsn := cfg.GetDSN()
	switch cfg.Database.Driver {
	case "mysql":
		// DATETIME without fractional seconds so CURRENT_TIMESTAMP is a valid default
		precision := 0
		return mysql.New(mysql.Config{DSN: dsn, DefaultDatetimePrecision: &precision}), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "info":
		return gormlogger.Info
	case "warn":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Close releases the connection pool. Operations on a closed store fail
// with a StorageUnavailable error. Closing twice is a no-op.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = stateClosed
	if prev != stateOpen {
		return nil
	}

	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// IsOpen reports whether the store is open and the database answers a ping
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return false
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// Dialect returns the name of the configured driver
func (s *Store) Dialect() string {
	return s.cfg.Database.Driver
}

func (s *Store) describe() string {
	switch s.cfg.Database.Driver {
	case "mysql":
		return fmt.Sprintf("mysql %s:%d/%s", s.cfg.Database.MySQL.Host, s.cfg.Database.MySQL.Port, s.cfg.Database.MySQL.DBName)
	case "postgres":
		return fmt.Sprintf("postgres %s:%d/%s", s.cfg.Database.PostgreSQL.Host, s.cfg.Database.PostgreSQL.Port, s.cfg.Database.PostgreSQL.DBName)
	default:
		return "sqlite " + s.cfg.Database.SQLite.Path
	}
}

// Info returns information about the store: driver, location, pool
// statistics, schema version and row counts per table.
func (s *Store) Info(ctx context.Context) (map[string]interface{}, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	info := make(map[string]interface{})
	info["driver"] = s.Dialect()
	info["connected"] = s.IsOpen()

	if sqlDB, err := db.DB(); err == nil {
		stats := sqlDB.Stats()
		info["max_open_connections"] = stats.MaxOpenConnections
		info["open_connections"] = stats.OpenConnections
		info["in_use"] = stats.InUse
		info["idle"] = stats.Idle
	}

	switch s.cfg.Database.Driver {
	case "mysql":
		info["host"] = s.cfg.Database.MySQL.Host
		info["port"] = s.cfg.Database.MySQL.Port
		info["database"] = s.cfg.Database.MySQL.DBName
	case "postgres":
		info["host"] = s.cfg.Database.PostgreSQL.Host
		info["port"] = s.cfg.Database.PostgreSQL.Port
		info["database"] = s.cfg.Database.PostgreSQL.DBName
	case "sqlite":
		info["path"] = s.cfg.Database.SQLite.Path
	}

	version, err := storedVersion(db)
	if err != nil {
		return nil, dataerr.NewQueryFailed("failed to read schema version", err)
	}
	info["schema_version"] = version

	for _, k := range contract.Kinds {
		var n int64
		if err := db.Table(k.Table()).Count(&n).Error; err != nil {
			return nil, dataerr.NewQueryFailed("failed to count "+k.Table(), err)
		}
		info[k.Table()+"_rows"] = n
	}

	return info, nil
}
