package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jgrocha/BluetoothChat/dataerr"
	"github.com/jgrocha/BluetoothChat/logger"
	"github.com/jgrocha/BluetoothChat/models"
)

// SchemaVersion records the schema version a database was created with
type SchemaVersion struct {
	ID        uint `gorm:"primaryKey"`
	Version   int  `gorm:"not null"`
	AppliedAt time.Time
}

// TableName customizes the table name
func (SchemaVersion) TableName() string {
	return "schema_version"
}

// ensureSchema creates missing tables and upgrades stores recorded with an
// older version. Stores recorded with a newer version are refused.
func ensureSchema(db *gorm.DB, want int) error {
	if err := db.AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("failed to initialize schema_version table: %w", err)
	}

	have, err := storedVersion(db)
	if err != nil {
		return err
	}

	switch {
	case have == 0:
		if err := createTables(db); err != nil {
			return err
		}
		return recordVersion(db, want)
	case have < want:
		return upgrade(db, have, want)
	case have > want:
		return fmt.Errorf("database schema version %d is newer than supported version %d", have, want)
	default:
		return createTables(db)
	}
}

// storedVersion returns the latest recorded version, or 0 for a new database
func storedVersion(db *gorm.DB) (int, error) {
	var rec SchemaVersion
	err := db.Order("id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return rec.Version, nil
}

func recordVersion(db *gorm.DB, version int) error {
	rec := SchemaVersion{Version: version, AppliedAt: time.Now()}
	if err := db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// createTables creates the tables that do not exist yet, parents first
func createTables(db *gorm.DB) error {
	m := db.Migrator()
	for _, model := range models.GetAllModels() {
		if m.HasTable(model) {
			continue
		}
		if err := m.CreateTable(model); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}

// dropTables drops every data table, children first
func dropTables(db *gorm.DB) error {
	all := models.GetAllModels()
	m := db.Migrator()
	for i := len(all) - 1; i >= 0; i-- {
		if err := m.DropTable(all[i]); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", all[i], err)
		}
	}
	return nil
}

// upgrade discards every row: tables are dropped and recreated empty
func upgrade(db *gorm.DB, from, to int) error {
	logger.Warnf("Upgrading database schema from version %d to %d, which will destroy all old data", from, to)
	if err := dropTables(db); err != nil {
		return err
	}
	if err := createTables(db); err != nil {
		return err
	}
	return recordVersion(db, to)
}

// Upgrade drops and recreates every table, recording version to. All data
// is lost.
func (s *Store) Upgrade(ctx context.Context, from, to int) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := upgrade(db, from, to); err != nil {
		return dataerr.NewStorageUnavailable("schema upgrade failed", err)
	}
	return nil
}

// Version returns the schema version recorded in the store
func (s *Store) Version(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	v, err := storedVersion(db)
	if err != nil {
		return 0, dataerr.NewQueryFailed("failed to read schema version", err)
	}
	return v, nil
}
