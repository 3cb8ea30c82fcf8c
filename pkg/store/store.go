// Package store persists the small amount of state a bluebox keeps
// across power cycles. It stands in for the MCU EEPROM on Linux hosts.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const keySerial = "serial"

// Record is one persisted key
type Record struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName overrides the gorm default
func (Record) TableName() string {
	return "nv_records"
}

// Config holds database configuration
type Config struct {
	Path string // SQLite file, or ":memory:"
}

// Store wraps the GORM database instance
type Store struct {
	db *gorm.DB
}

// Open opens or creates the store with the pure Go SQLite driver
func Open(config Config, log logrus.FieldLogger) (*Store, error) {
	var gormLog logger.Interface
	if log != nil {
		gormLog = logger.New(
			log,
			logger.Config{
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	} else {
		gormLog = logger.Default.LogMode(logger.Silent)
	}

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", config.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared
	sqlDB.SetMaxOpenConns(1)
	if err := configureSQLite(sqlDB); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	if log != nil {
		log.WithField("path", config.Path).Debug("store opened")
	}

	return &Store{db: db}, nil
}

func configureSQLite(sqlDB *sql.DB) error {
	pragmaSettings := []string{
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmaSettings {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the value stored under key
func (s *Store) Get(key string) (string, error) {
	var rec Record
	err := s.db.Where(&Record{Name: key}).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return rec.Value, nil
}

// Set creates or replaces the value under key
func (s *Store) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return s.db.Save(&Record{Name: key, Value: value, UpdatedAt: time.Now()}).Error
}

// Serial returns the persisted serial number. A fresh store reports 0
// like erased EEPROM would.
func (s *Store) Serial() (uint32, error) {
	v, err := s.Get(keySerial)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("corrupt serial %q: %w", v, err)
	}
	return uint32(n), nil
}

// SetSerial persists the serial number
func (s *Store) SetSerial(serial uint32) error {
	return s.Set(keySerial, strconv.FormatUint(uint64(serial), 10))
}
