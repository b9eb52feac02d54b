package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ValentinKolb/sqkv/lib/codec"
	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
	"github.com/ValentinKolb/sqkv/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// defaultMaxBinds is the compile time default of SQLITE_MAX_VARIABLE_NUMBER,
// used when the limit of the connection cannot be queried
const defaultMaxBinds = 32766

var logger = common.CreateLogger("sqlstore")

// pragmas are applied once to the connection of every store
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA cache_size=1000",
	"PRAGMA temp_store=MEMORY",
}

// compile time check
var _ store.IStore = (*Store)(nil)

// Store is a store.IStore backed by a single SQLite database file.
//
// Thread-safety:
//
//	A Store is safe for concurrent use. All statements run on one dedicated
//	connection that is guarded by a mutex, so operations are serialized at
//	the database level. Encoding and decoding of batches happens outside the
//	lock on a bounded worker pool.
type Store struct {
	cfg      common.StoreConfig
	pipeline *codec.Pipeline

	mu   sync.Mutex // guards db and conn; conn is nil after Close
	db   *sql.DB
	conn *sql.Conn

	maxBinds   int
	namespaces *namespaceCache
	stmts      *xsync.MapOf[string, *sql.Stmt]
	metrics    *storeMetrics
}

// Open opens (or creates) the database at cfg.Path and returns a ready store.
// An invalid compression selector fails with common.ErrConfig before the file is touched.
func Open(ctx context.Context, cfg common.StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, common.NewError(common.RetCConfig, "database path must not be empty")
	}
	if cfg.Compression == "" {
		cfg.Compression = common.DefaultCompression
	}
	compression, err := codec.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, common.WrapError(common.RetCStorage, err, fmt.Sprintf("open database %s", cfg.Path))
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, common.WrapError(common.RetCStorage, err, fmt.Sprintf("connect to database %s", cfg.Path))
	}

	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			_ = db.Close()
			return nil, common.WrapError(common.RetCStorage, err, pragma)
		}
	}

	maxBinds, err := sqlite.Limit(conn, sqlite3.SQLITE_LIMIT_VARIABLE_NUMBER, -1)
	if err != nil || maxBinds <= 0 {
		logger.WithError(err).Warnf("could not query bind parameter limit, using %d", defaultMaxBinds)
		maxBinds = defaultMaxBinds
	}

	s := &Store{
		cfg: cfg,
		pipeline: codec.NewPipeline(codec.Settings{
			AllowGob:    cfg.AllowGob,
			Compression: compression,
		}),
		db:         db,
		conn:       conn,
		maxBinds:   maxBinds,
		namespaces: newNamespaceCache(),
		stmts:      xsync.NewMapOf[string, *sql.Stmt](),
	}
	s.metrics = newStoreMetrics(s.namespaces.count)

	logger.WithFields(logrus.Fields{
		"path":        cfg.Path,
		"compression": compression.String(),
		"allow_gob":   cfg.AllowGob,
		"max_binds":   maxBinds,
	}).Info("store opened")
	return s, nil
}

// Close releases the cached statements and the connection. Calling Close more
// than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	var errs []error
	s.stmts.Range(func(_ string, stmt *sql.Stmt) bool {
		errs = append(errs, stmt.Close())
		return true
	})
	s.stmts.Clear()
	errs = append(errs, s.conn.Close(), s.db.Close())
	s.conn = nil
	s.db = nil

	if err := errors.Join(errs...); err != nil {
		return common.WrapError(common.RetCStorage, err, "close store")
	}
	logger.WithField("path", s.cfg.Path).Info("store closed")
	return nil
}

// Config returns the configuration the store was opened with
func (s *Store) Config() common.StoreConfig {
	return s.cfg
}

// WriteMetrics writes the operation metrics in Prometheus text format
func (s *Store) WriteMetrics(w io.Writer) {
	s.metrics.write(w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// withConn runs fn with exclusive access to the connection
func (s *Store) withConn(fn func(conn *sql.Conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return common.NewError(common.RetCClosed, "connection is closed")
	}
	return fn(s.conn)
}

// withTx runs fn in a transaction on the locked connection. The transaction
// is committed if fn returns nil and rolled back otherwise.
func withTx(ctx context.Context, conn *sql.Conn, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError(err, "commit transaction")
	}
	return nil
}

// prepared returns a cached statement for query, preparing it on first use.
// It must be called with the connection lock held.
func (s *Store) prepared(ctx context.Context, conn *sql.Conn, query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmts.Load(query); ok {
		return stmt, nil
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts.Store(query, stmt)
	return stmt, nil
}

// query formats tmpl with the quoted table name of ns
func (s *Store) query(ns, tmpl string) string {
	return fmt.Sprintf(tmpl, s.namespaces.names(ns).table)
}

// table returns the quoted table name of ns
func (s *Store) table(ns string) string {
	return s.namespaces.names(ns).table
}

// isExpired reports whether a record must be hidden from reads
func (s *Store) isExpired(expires sql.NullInt64, now int64) bool {
	return s.cfg.EnforceExpiry && expires.Valid && expires.Int64 <= now
}

// isNoSuchTable reports whether err was caused by a missing table. Only the
// driver error is inspected. Its text reads "<errstr>: <errmsg> (<code>)" and
// errors created by this package never match, whatever keys they quote.
func isNoSuchTable(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) || e.Code()&0xff != sqlite3.SQLITE_ERROR {
		return false
	}
	_, msg, _ := strings.Cut(e.Error(), ": ")
	return strings.HasPrefix(msg, "no such table: ")
}

// storageError wraps a driver error. nil and errors that already carry a
// code are returned unchanged.
func storageError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *common.Error
	if errors.As(err, &e) {
		return err
	}
	return common.WrapError(common.RetCStorage, err, fmt.Sprintf(format, args...))
}

// validateIdents checks the namespace and all keys
func validateIdents(ns string, keys ...string) error {
	if err := util.ValidateIdent("namespace", ns); err != nil {
		return err
	}
	for _, k := range keys {
		if err := util.ValidateIdent("key", k); err != nil {
			return err
		}
	}
	return nil
}
