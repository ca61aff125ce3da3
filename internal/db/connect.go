package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/zulandar/switchboard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// sqliteBusyTimeoutMs is how long a SQLite writer waits on a locked file.
const sqliteBusyTimeoutMs = 5000

// MySQLDSN builds a go-sql-driver DSN from the database config.
func MySQLDSN(cfg config.DatabaseConfig) string {
	mc := mysqldrv.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// PostgresDSN builds a libpq-style keyword DSN from the database config.
func PostgresDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=prefer TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
}

// SQLiteDSN appends the pragmas every switchboard SQLite connection needs.
// WAL is skipped for in-memory databases.
func SQLiteDSN(path string) string {
	params := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on", sqliteBusyTimeoutMs)
	if path != MemoryPath {
		params = "_journal_mode=WAL&" + params
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params
}

// key identifies a physical database so the pool can share handles.
func key(cfg config.DatabaseConfig) string {
	switch cfg.Driver {
	case "mysql":
		return "mysql:" + MySQLDSN(cfg)
	case "postgres":
		return "postgres:" + PostgresDSN(cfg)
	default:
		if cfg.Path == MemoryPath {
			return ""
		}
		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			abs = cfg.Path
		}
		return "sqlite:" + abs
	}
}

// Open opens a GORM connection for the configured driver. SQLite databases
// are limited to a single connection so writes never contend inside the
// process and in-memory databases survive for the handle's lifetime.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(MySQLDSN(cfg))
	case "postgres":
		dialector = postgres.Open(PostgresDSN(cfg))
	case "sqlite", "":
		if cfg.Path != MemoryPath {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("db: create data dir for %s: %w", cfg.Path, err)
			}
		}
		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", describe(cfg), err)
	}
	if cfg.Driver == "sqlite" || cfg.Driver == "" {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("db: connect %s: %w", describe(cfg), err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

// OpenMemory returns a fresh migrated in-memory SQLite database.
func OpenMemory() (*gorm.DB, error) {
	gdb, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: MemoryPath})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func describe(cfg config.DatabaseConfig) string {
	switch cfg.Driver {
	case "mysql", "postgres":
		return fmt.Sprintf("%s %s:%d/%s", cfg.Driver, cfg.Host, cfg.Port, cfg.Name)
	default:
		return "sqlite " + cfg.Path
	}
}

// Pool caches one migrated *gorm.DB per physical database. It is created
// once at startup and passed to the components that need storage.
type Pool struct {
	mu  sync.Mutex
	dbs map[string]*gorm.DB
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{dbs: make(map[string]*gorm.DB)}
}

// Get returns the cached handle for cfg, opening and migrating it on first
// use. In-memory databases are never shared.
func (p *Pool) Get(cfg config.DatabaseConfig) (*gorm.DB, error) {
	k := key(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if k != "" {
		if gdb, ok := p.dbs[k]; ok {
			return gdb, nil
		}
	}
	gdb, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gdb); err != nil {
		closeDB(gdb)
		return nil, err
	}
	if k != "" {
		p.dbs[k] = gdb
	}
	return gdb, nil
}

// Close closes every cached handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for k, gdb := range p.dbs {
		if err := closeDB(gdb); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("db: close %s: %w", k, err)
		}
		delete(p.dbs, k)
	}
	return firstErr
}

func closeDB(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
