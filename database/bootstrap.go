// database/bootstrap.go
package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite" // CGO-free driver
	"github.com/labstack/gommon/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"travo/entities"
)

// Open opens the local store and brings its schema up to date.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// must run before AutoMigrate: the unique index cannot be created over
	// duplicate rows
	if err := dedupeSyncRecords(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if err := db.AutoMigrate(
		&entities.Session{},
		&entities.SyncRecord{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return db, nil
}

// OpenSQLite is Open for process startup: failure is fatal.
func OpenSQLite(path string) *gorm.DB {
	db, err := Open(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return db
}

// dedupeSyncRecords keeps only the newest row per (plan_id, activity_id) in
// stores written before the ledger had a unique index.
func dedupeSyncRecords(db *gorm.DB) error {
	var tbl string
	if err := db.Raw(`SELECT name FROM sqlite_master WHERE type='table' AND name='sync_records'`).Scan(&tbl).Error; err != nil {
		return fmt.Errorf("check table exist: %w", err)
	}
	if tbl == "" {
		// fresh DB, nothing to do
		return nil
	}

	var idx string
	if err := db.Raw(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_sync_plan_activity'`).Scan(&idx).Error; err != nil {
		return fmt.Errorf("check index exist: %w", err)
	}
	if idx != "" {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
DELETE FROM sync_records
WHERE record_id NOT IN (
    SELECT MAX(record_id) FROM sync_records GROUP BY plan_id, activity_id
);`)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			log.Infof("[db] dropped %d duplicate sync records", res.RowsAffected)
		}
		return nil
	})
}
