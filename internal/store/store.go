package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/keyhub-labs/keyhub/internal/errcode"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the store layout this build reads and writes. It is kept
// in PRAGMA user_version.
const SchemaVersion = 1

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the registry database: one row per installed add-on plus the
// software and executables those add-ons declare.
//
// Reads run concurrently. Writes are serialized per database file across
// every Store in the process and commit atomically, so readers never observe
// a half-written record.
type Store struct {
	db   *sql.DB
	path string
	mu   *sync.Mutex
	log  *zap.Logger
}

// writeLocks holds one mutex per absolute database path.
var writeLocks sync.Map

func writeLockFor(path string) *sync.Mutex {
	mu, _ := writeLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create opens the database at path, creating the file and its schema when
// missing. Failures are reported as errcode.DBLoadFailure.
func Create(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "creating database directory")
	}
	return open(ctx, path, log)
}

// Open opens an existing database. A missing file is errcode.DBLoadFailure.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "opening registry database")
	}
	return open(ctx, path, log)
}

func open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "resolving database path")
	}

	db, err := sql.Open("sqlite", dsn(abs))
	if err != nil {
		return nil, errcode.Wrap(errcode.DBLoadFailure, err, "opening database %s", abs)
	}

	s := &Store{
		db:   db,
		path: abs,
		mu:   writeLockFor(abs),
		log:  log.Named("add-ons:store"),
	}

	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Debug("registry store opened", zap.String("path", abs))
	return s, nil
}

// dsn builds the modernc.org/sqlite connection string. Pragmas given in the
// DSN apply to every pooled connection.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the absolute database path.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the schema on an empty database and verifies the schema
// version of an existing one. It is safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return errcode.Wrap(errcode.DBLoadFailure, err, "reading schema version")
	}

	switch version {
	case SchemaVersion:
		return nil
	case 0:
		if err := s.createSchema(ctx); err != nil {
			return errcode.Wrap(errcode.DBLoadFailure, err, "creating schema")
		}
		s.log.Info("registry schema created", zap.Int("version", SchemaVersion))
		return nil
	default:
		return errcode.New(errcode.DBLoadFailure, "unsupported schema version %d (want %d)", version, SchemaVersion)
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

const schema = `
	CREATE TABLE IF NOT EXISTS addons (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL UNIQUE,
		type         TEXT NOT NULL,
		version      TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		icon_url     TEXT NOT NULL DEFAULT '',
		entry        TEXT NOT NULL,
		package_dir  TEXT NOT NULL,
		install_path TEXT NOT NULL,
		is_link      INTEGER NOT NULL DEFAULT 0,
		capabilities TEXT NOT NULL,
		size         INTEGER NOT NULL DEFAULT 0,
		pending      TEXT NOT NULL DEFAULT '',
		updated_at   TEXT NOT NULL,

		CHECK (type IN ('detector', 'executor', 'controller')),
		CHECK (is_link IN (0, 1)),
		CHECK (pending IN ('', 'added', 'updated'))
	);

	CREATE INDEX IF NOT EXISTS idx_addons_type ON addons(type);

	CREATE TABLE IF NOT EXISTS software (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		owner_name    TEXT NOT NULL,
		url           TEXT NOT NULL DEFAULT '',
		homepage      TEXT NOT NULL DEFAULT '',
		download_type TEXT NOT NULL DEFAULT 'none',
		installed     INTEGER NOT NULL DEFAULT 0,

		UNIQUE (name, owner_name),
		CHECK (installed IN (0, 1)),
		FOREIGN KEY (owner_name) REFERENCES addons(name) ON DELETE CASCADE ON UPDATE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_software_name ON software(name);

	CREATE TABLE IF NOT EXISTS executables (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		path           TEXT NOT NULL,
		arch           TEXT NOT NULL DEFAULT '',
		os             TEXT NOT NULL DEFAULT '',
		user_installed INTEGER NOT NULL DEFAULT 0,
		software_id    TEXT NOT NULL,

		UNIQUE (name, software_id),
		CHECK (user_installed IN (0, 1)),
		FOREIGN KEY (software_id) REFERENCES software(id) ON DELETE CASCADE
	);
`
