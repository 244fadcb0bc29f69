package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ostanek/reconbackend/models"
)

// processing status values stored in directories.status. the column itself
// is free text, so every write path must go through IsValidStatus
const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusQueued:     true,
	StatusProcessing: true,
	StatusCompleted:  true,
	StatusFailed:     true,
}

// IsValidStatus reports whether s is one of the recognized status tokens
func IsValidStatus(s string) bool {
	return validStatuses[s]
}

// TerminalStatuses are the statuses with no automatic further transition;
// only these are eligible for retention cleanup
var TerminalStatuses = []string{StatusCompleted, StatusFailed}

var (
	// ErrNotFound is returned when an operation references a directory name
	// that has never been registered
	ErrNotFound = errors.New("directory not found")

	// ErrInvalidStatus is returned when a status write carries an
	// unrecognized status token
	ErrInvalidStatus = errors.New("invalid status")

	// ErrTimeout is returned when the exclusive store lock could not be
	// acquired within the busy timeout. It is retryable
	ErrTimeout = errors.New("database lock wait timed out")
)

// IsBusy reports whether err is an SQLite lock contention error, i.e. the
// busy timeout elapsed while another writer held the database
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// InitGormDB initializes and returns a GORM database instance backed by
// SQLite. WAL mode keeps readers from blocking behind the single writer, and
// busyTimeout bounds how long any writer waits for the exclusive lock
func InitGormDB(dataSourceName string, busyTimeout time.Duration) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	if busyTimeout <= 0 {
		busyTimeout = 10 * time.Second
	}
	// _txlock=immediate makes transactions take the write lock at BEGIN.
	// Without it a deferred transaction that reads before writing upgrades
	// its lock mid-transaction, and that upgrade returns SQLITE_BUSY
	// immediately instead of honoring the busy timeout
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate",
		dataSourceName, busyTimeout.Milliseconds())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("GORM Database initialized successfully at", dataSourceName)
	return db, nil
}

// AutoMigrateModels can be called after InitGormDB to migrate schemas.
// A failure here is fatal to the process; the store cannot operate without
// its schema
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Directory{},
		&models.ProcessingLog{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	log.Println("GORM AutoMigrate completed successfully.")
	return nil
}
