package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"maragu.dev/goqite"
	_ "modernc.org/sqlite"
)

// Config configures the embedded relational database connection.
type Config struct {
	Path            string
	WALMode         bool
	BusyTimeoutMS   int
	CacheSizeMB     int
	ResetOnStartup  bool
	AllowDevReset   bool
}

// DefaultStoreConfig mirrors spec.md §6's persistent-state defaults.
func DefaultStoreConfig(path string) Config {
	return Config{
		Path:          path,
		WALMode:       true,
		BusyTimeoutMS: 5000,
		CacheSizeMB:   64,
	}
}

// DB wraps the single embedded relational database connection (spec.md §3:
// "one embedded relational database file at database_path").
type DB struct {
	conn   *sql.DB
	logger arbor.ILogger
	config Config
}

// Open creates and configures the database connection, initializing the
// goqite job-notification schema and netwatch's own tables.
func Open(logger arbor.ILogger, config Config) (*DB, error) {
	dir := filepath.Dir(config.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	if config.ResetOnStartup {
		if !config.AllowDevReset {
			logger.Warn().Msg("reset_on_startup requested but AllowDevReset is false - ignoring for safety")
		} else if err := resetDatabase(logger, config.Path); err != nil {
			return nil, fmt.Errorf("reset database: %w", err)
		}
	}

	logger.Debug().Str("path", config.Path).Msg("opening database connection")

	// modernc.org/sqlite registers the "sqlite" driver name (not "sqlite3").
	conn, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn
	// under WAL and lets the job-claim compare-and-swap stay simple.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	d := &DB{conn: conn, logger: logger, config: config}

	if err := goqite.Setup(context.Background(), conn); err != nil {
		if strings.Contains(err.Error(), "table goqite already exists") {
			logger.Debug().Msg("goqite schema already present")
		} else {
			conn.Close()
			return nil, fmt.Errorf("initialize goqite schema: %w", err)
		}
	} else {
		logger.Info().Msg("goqite job-notification schema initialized")
	}

	if err := d.configure(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if err := d.InitSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("database ready")
	return d, nil
}

func (d *DB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", d.config.CacheSizeMB*1024),
		fmt.Sprintf("PRAGMA busy_timeout = %d", d.config.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if d.config.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := d.conn.Exec(pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	if d.config.WALMode {
		var journalMode string
		if err := d.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
			d.logger.Warn().Err(err).Msg("failed to verify journal mode")
		} else {
			d.logger.Info().
				Str("journal_mode", journalMode).
				Int("busy_timeout_ms", d.config.BusyTimeoutMS).
				Int("cache_size_mb", d.config.CacheSizeMB).
				Msg("sqlite pragmas applied")
		}
	}
	return nil
}

// Conn returns the underlying *sql.DB.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// BeginTx starts a new transaction.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.conn.BeginTx(ctx, nil)
}

// Ping verifies the database connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// resetDatabase deletes the database file and its WAL/SHM siblings.
func resetDatabase(logger arbor.ILogger, dbPath string) error {
	logger.Warn().Str("path", dbPath).Msg("resetting database - deleting all data")

	if err := os.Remove(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("delete database file: %w", err)
		}
	} else {
		logger.Info().Str("path", dbPath).Msg("deleted database file")
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		p := dbPath + suffix
		if err := os.Remove(p); err != nil {
			if !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("path", p).Msg("failed to delete sidecar file")
			}
		} else {
			logger.Debug().Str("path", p).Msg("deleted sidecar file")
		}
	}

	logger.Info().Msg("database reset complete")
	return nil
}
