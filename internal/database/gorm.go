package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jesadaho/asset-ace-sub000/internal/config"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB owns the process-wide database handle. It is built once in main and
// injected into every service.
type GormDB struct {
	db *gorm.DB
}

// Now is the clock used for gorm-managed timestamps. Millisecond precision keeps
// stored created_at values comparable with keyset cursors.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Open connects to the database selected by cfg.Type (mysql, postgres or sqlite)
func Open(cfg config.DatabaseConfig) (*GormDB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Silent
	if cfg.LogSQL {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel),
		NowFunc: Now,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	if cfg.Type == "sqlite" {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}

	slog.Info("database connected", "type", cfg.Type)
	return &GormDB{db: db}, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "mysql":
		m := cfg.MySQL
		port := m.Port
		if port == 0 {
			port = 3306
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
			m.User, m.Password, m.Host, port, m.Database)
		return mysql.Open(dsn), nil
	case "postgres":
		p := cfg.Postgres
		port := p.Port
		if port == 0 {
			port = 5432
		}
		sslMode := p.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			p.Host, port, p.User, p.Password, p.Database, sslMode)
		// lib/pq registers itself as "postgres"
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn}), nil
	case "sqlite", "":
		path := cfg.SQLite.Path
		if path == "" {
			path = "assetace.db"
		}
		return sqlite.Open(path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return AutoMigrate(gdb.db)
}

// AutoMigrate creates or updates every table the service owns
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Property{},
		&models.RentalHistoryRecord{},
		&models.PropertyFollow{},
		&models.AgentContactRequest{},
		&models.AgentInvite{},
	)
}

// Ping checks that the database is reachable
func (gdb *GormDB) Ping() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
