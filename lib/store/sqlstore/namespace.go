package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// tablePrefix is prepended to every namespace to form its table name
const tablePrefix = "tl_"

// tableNames holds the quoted identifiers of one namespace
type tableNames struct {
	table string // "tl_<ns>"
	index string // "tl_<ns>_key"
}

// quoteIdent quotes s as an SQL identifier, doubling embedded quotes
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// --------------------------------------------------------------------------
// Namespace cache
// --------------------------------------------------------------------------

// namespaceCache remembers the quoted identifiers of every namespace seen and
// the namespaces whose table is known to exist.
//
// Thread-safety:
//
//	The identifier cache is a concurrent map. The known set is guarded by a
//	reader-biased mutex since it is read on every write but only grows once
//	per namespace.
type namespaceCache struct {
	idents *xsync.MapOf[string, tableNames]

	mu    *xsync.RBMutex
	known map[string]struct{}
}

func newNamespaceCache() *namespaceCache {
	return &namespaceCache{
		idents: xsync.NewMapOf[string, tableNames](),
		mu:     xsync.NewRBMutex(),
		known:  make(map[string]struct{}),
	}
}

// names returns the quoted identifiers for ns
func (c *namespaceCache) names(ns string) tableNames {
	names, _ := c.idents.LoadOrCompute(ns, func() tableNames {
		return tableNames{
			table: quoteIdent(tablePrefix + ns),
			index: quoteIdent(tablePrefix + ns + "_key"),
		}
	})
	return names
}

func (c *namespaceCache) isKnown(ns string) bool {
	t := c.mu.RLock()
	defer c.mu.RUnlock(t)
	_, ok := c.known[ns]
	return ok
}

func (c *namespaceCache) markKnown(ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[ns] = struct{}{}
}

// forget drops ns from the known set after its table vanished
func (c *namespaceCache) forget(ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.known, ns)
}

// count returns the number of namespaces known to have a table
func (c *namespaceCache) count() int {
	t := c.mu.RLock()
	defer c.mu.RUnlock(t)
	return len(c.known)
}

// --------------------------------------------------------------------------
// Table management
// --------------------------------------------------------------------------

// lookupNamespace reports whether the table of ns exists.
//
// SQLite compares identifiers with ASCII case folded, even quoted ones, so
// "tl_Foo" and "tl_foo" name the same table. A table that only matches ns
// case-insensitively belongs to another namespace and is returned as owner.
// It must be called with the connection lock held.
func (s *Store) lookupNamespace(ctx context.Context, q queryer, ns string) (exists bool, owner string, err error) {
	if s.namespaces.isKnown(ns) {
		return true, "", nil
	}

	rows, err := q.QueryContext(ctx, findTableSQL, tablePrefix+ns)
	if err != nil {
		return false, "", storageError(err, "look up namespace %q", ns)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, "", storageError(err, "scan table name")
		}
		if name == tablePrefix+ns {
			s.namespaces.markKnown(ns)
			return true, "", nil
		}
		owner = strings.TrimPrefix(name, tablePrefix)
	}
	if err := rows.Err(); err != nil {
		return false, "", storageError(err, "look up namespace %q", ns)
	}
	return false, owner, nil
}

// withNamespace runs fn with the locked connection and the quoted table of ns.
// fn is skipped when ns has no table, so reads on a missing namespace see
// nothing. ran reports whether fn was called.
func (s *Store) withNamespace(ctx context.Context, ns string, fn func(conn *sql.Conn, table string) error) (ran bool, err error) {
	err = s.withConn(func(conn *sql.Conn) error {
		exists, _, err := s.lookupNamespace(ctx, conn, ns)
		if err != nil || !exists {
			return err
		}
		ran = true
		return fn(conn, s.table(ns))
	})
	if isNoSuchTable(err) {
		// dropped behind our back
		s.namespaces.forget(ns)
		return false, nil
	}
	return ran, err
}

// ensureNamespace creates the table and key index of ns if needed. A table
// owned by a namespace that differs only in ASCII case fails with
// common.ErrConflict.
// It must be called with the connection lock held and outside a transaction.
func (s *Store) ensureNamespace(ctx context.Context, conn *sql.Conn, ns string) error {
	exists, owner, err := s.lookupNamespace(ctx, conn, ns)
	if err != nil || exists {
		return err
	}
	if owner != "" {
		return common.Errorf(common.RetCConflict, "namespace %q collides with namespace %q: table names are case-insensitive", ns, owner)
	}

	names := s.namespaces.names(ns)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(createTableSQL, names.table)); err != nil {
		return storageError(err, "create table for namespace %q", ns)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(createIndexSQL, names.index, names.table)); err != nil {
		return storageError(err, "create index for namespace %q", ns)
	}

	s.namespaces.markKnown(ns)
	logger.WithField("namespace", ns).Debug("namespace table ready")
	return nil
}

// listNamespaces enumerates the namespace tables in the catalog.
// It must be called with the connection lock held.
func listNamespaces(ctx context.Context, conn *sql.Conn) ([]string, error) {
	rows, err := conn.QueryContext(ctx, listTablesSQL)
	if err != nil {
		return nil, storageError(err, "list namespace tables")
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageError(err, "scan table name")
		}
		namespaces = append(namespaces, strings.TrimPrefix(name, tablePrefix))
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list namespace tables")
	}
	return namespaces, nil
}
