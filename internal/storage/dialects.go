package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/kuhlman-labs/team-migrator/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
)

// Database type names accepted in configuration.
const (
	DBTypeSQLite     = "sqlite"
	DBTypeSQLite3    = "sqlite3"
	DBTypePostgres   = "postgres"
	DBTypePostgreSQL = "postgresql"
	DBTypeSQLServer  = "sqlserver"
	DBTypeMSSQL      = "mssql"
)

// DialectDialer creates a GORM dialector based on the database type
type DialectDialer interface {
	Dialect() gorm.Dialector
	ConfigureConnection(*gorm.DB) error
}

// NewDialectDialer creates a dialect dialer based on the database configuration
func NewDialectDialer(cfg config.DatabaseConfig) (DialectDialer, error) {
	switch strings.ToLower(cfg.Type) {
	case DBTypeSQLite, DBTypeSQLite3:
		return &SQLiteDialect{cfg: cfg}, nil
	case DBTypePostgres, DBTypePostgreSQL:
		return &PostgresDialect{cfg: cfg}, nil
	case DBTypeSQLServer, DBTypeMSSQL:
		return &SQLServerDialect{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func isSQLite(dbType string) bool {
	t := strings.ToLower(dbType)
	return t == DBTypeSQLite || t == DBTypeSQLite3
}

// poolSettings applies connection pool limits, falling back to the given
// defaults for values left at zero in configuration.
func poolSettings(db *gorm.DB, cfg config.DatabaseConfig, defaultOpen, defaultIdle int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = defaultOpen
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = defaultIdle
	}
	lifetime := time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	return nil
}

// SQLiteDialect handles SQLite-specific configuration
type SQLiteDialect struct {
	cfg config.DatabaseConfig
}

func (d *SQLiteDialect) Dialect() gorm.Dialector {
	dsn := d.cfg.DSN
	if !strings.Contains(dsn, "?") {
		dsn += "?_parseTime=true"
	} else if !strings.Contains(dsn, "_parseTime") {
		dsn += "&_parseTime=true"
	}
	return sqlite.Open(dsn)
}

func (d *SQLiteDialect) ConfigureConnection(db *gorm.DB) error {
	// Single writer: SQLite serializes writes and an in-memory database is
	// private to its connection.
	if err := poolSettings(db, d.cfg, 1, 1); err != nil {
		return err
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

// PostgresDialect handles PostgreSQL-specific configuration
type PostgresDialect struct {
	cfg config.DatabaseConfig
}

func (d *PostgresDialect) Dialect() gorm.Dialector {
	return postgres.Open(d.cfg.DSN)
}

func (d *PostgresDialect) ConfigureConnection(db *gorm.DB) error {
	return poolSettings(db, d.cfg, 25, 5)
}

// SQLServerDialect handles SQL Server-specific configuration
type SQLServerDialect struct {
	cfg config.DatabaseConfig
}

func (d *SQLServerDialect) Dialect() gorm.Dialector {
	return sqlserver.Open(d.cfg.DSN)
}

func (d *SQLServerDialect) ConfigureConnection(db *gorm.DB) error {
	return poolSettings(db, d.cfg, 25, 5)
}
