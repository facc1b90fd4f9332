package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// ErrNotFound is returned by operations that require an existing row.
var ErrNotFound = errors.New("record not found")

// Database is the gorm-backed mapping store.
type Database struct {
	db  *gorm.DB
	cfg config.DatabaseConfig
}

// NewDatabase opens the configured database and applies connection settings.
// Migrate must be called before first use.
func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	dialer, err := NewDialectDialer(cfg)
	if err != nil {
		return nil, err
	}

	if isSQLite(cfg.Type) && cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(dialer.Dialect(), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dialer.ConfigureConnection(db); err != nil {
		return nil, fmt.Errorf("failed to configure database connection: %w", err)
	}

	return &Database{db: db, cfg: cfg}, nil
}

// Migrate creates or updates the schema.
func (d *Database) Migrate() error {
	if err := d.db.AutoMigrate(&models.TeamMapping{}, &models.TeamRepository{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// GormDB exposes the underlying handle for callers that need transactions.
func (d *Database) GormDB() *gorm.DB {
	return d.db
}
