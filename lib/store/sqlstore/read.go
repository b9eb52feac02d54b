package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/sqkv/lib/codec"
	"github.com/ValentinKolb/sqkv/lib/util"
)

// storedRecord is a raw row as read from a namespace table
type storedRecord struct {
	key     string
	chain   []byte
	data    []byte
	expires sql.NullInt64
}

// --------------------------------------------------------------------------
// Single key reads
// --------------------------------------------------------------------------

func (s *Store) Get(ctx context.Context, ns, key string) (value any, loaded bool, err error) {
	defer s.metrics.observe(opGet, time.Now(), &err)
	if err = validateIdents(ns, key); err != nil {
		return nil, false, err
	}

	rec := storedRecord{key: key}
	found := false
	_, err = s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		stmt, err := s.prepared(ctx, conn, fmt.Sprintf(selectOneSQL, table))
		if err != nil {
			return storageError(err, "prepare get")
		}

		err = stmt.QueryRowContext(ctx, key).Scan(&rec.chain, &rec.data, &rec.expires)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return storageError(err, "get %q from namespace %q", key, ns)
		}
		found = true
		return nil
	})
	if err != nil || !found || s.isExpired(rec.expires, util.NowMillis()) {
		return nil, false, err
	}

	value, err = s.pipeline.DecodeChain(codec.ChainFromBytes(rec.chain), rec.data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Has(ctx context.Context, ns, key string) (loaded bool, err error) {
	defer s.metrics.observe(opHas, time.Now(), &err)
	if err = validateIdents(ns, key); err != nil {
		return false, err
	}

	_, err = s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		stmt, err := s.prepared(ctx, conn, fmt.Sprintf(existsOneSQL, table))
		if err != nil {
			return storageError(err, "prepare has")
		}

		if err := stmt.QueryRowContext(ctx, key).Scan(&loaded); err != nil {
			return storageError(err, "has %q in namespace %q", key, ns)
		}
		return nil
	})
	return loaded, err
}

// --------------------------------------------------------------------------
// Batch reads
// --------------------------------------------------------------------------

func (s *Store) GetMany(ctx context.Context, ns string, keys []string) (values map[string]any, err error) {
	defer s.metrics.observe(opGetMany, time.Now(), &err)
	if err = validateIdents(ns, keys...); err != nil {
		return nil, err
	}

	var records []storedRecord
	_, err = s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		for _, chunk := range util.Chunks(keys, s.maxBinds) {
			rows, err := conn.QueryContext(ctx, selectManySQL(table, len(chunk)), stringArgs(chunk)...)
			if err != nil {
				return storageError(err, "get many from namespace %q", ns)
			}

			for rows.Next() {
				var rec storedRecord
				if err := rows.Scan(&rec.key, &rec.chain, &rec.data, &rec.expires); err != nil {
					_ = rows.Close()
					return storageError(err, "scan record")
				}
				records = append(records, rec)
			}
			if err := errors.Join(rows.Err(), rows.Close()); err != nil {
				return storageError(err, "get many from namespace %q", ns)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// drop expired records before spending time on decoding them
	now := util.NowMillis()
	live := records[:0]
	for _, rec := range records {
		if !s.isExpired(rec.expires, now) {
			live = append(live, rec)
		}
	}

	decoded, err := util.ParallelMap(ctx, live, func(rec storedRecord) (any, error) {
		return s.pipeline.DecodeChain(codec.ChainFromBytes(rec.chain), rec.data)
	})
	if err != nil {
		return nil, err
	}

	values = make(map[string]any, len(live))
	for i, rec := range live {
		values[rec.key] = decoded[i]
	}
	s.metrics.records(opGetMany, len(values))
	return values, nil
}

func (s *Store) HasMany(ctx context.Context, ns string, keys []string) (found map[string]struct{}, err error) {
	defer s.metrics.observe(opHasMany, time.Now(), &err)
	if err = validateIdents(ns, keys...); err != nil {
		return nil, err
	}

	found = make(map[string]struct{})
	_, err = s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		existing, err := existingKeys(ctx, conn, table, keys, s.maxBinds)
		if err != nil {
			return err
		}
		found = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// existingKeys returns the subset of keys present in table, querying in
// chunks of at most maxBinds keys.
func existingKeys(ctx context.Context, q queryer, table string, keys []string, maxBinds int) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(keys))
	for _, chunk := range util.Chunks(keys, maxBinds) {
		rows, err := q.QueryContext(ctx, existsManySQL(table, len(chunk)), stringArgs(chunk)...)
		if err != nil {
			return nil, storageError(err, "query existing keys")
		}

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				_ = rows.Close()
				return nil, storageError(err, "scan key")
			}
			found[key] = struct{}{}
		}
		if err := errors.Join(rows.Err(), rows.Close()); err != nil {
			return nil, storageError(err, "query existing keys")
		}
	}
	return found, nil
}

// queryer is implemented by *sql.Conn and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// --------------------------------------------------------------------------
// Enumeration
// --------------------------------------------------------------------------

func (s *Store) ListKeys(ctx context.Context, ns string) (keys []string, err error) {
	defer s.metrics.observe(opListKeys, time.Now(), &err)
	if err = validateIdents(ns); err != nil {
		return nil, err
	}
	return s.listKeys(ctx, ns, listKeysSQL)
}

func (s *Store) ListKeysLike(ctx context.Context, ns, pattern string) (keys []string, err error) {
	defer s.metrics.observe(opListKeys, time.Now(), &err)
	if err = validateIdents(ns, pattern); err != nil {
		return nil, err
	}
	return s.listKeys(ctx, ns, listKeysLikeSQL, pattern)
}

// listKeys runs the key listing template tmpl against the table of ns
func (s *Store) listKeys(ctx context.Context, ns, tmpl string, args ...any) ([]string, error) {
	keys := []string{}
	_, err := s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		rows, err := conn.QueryContext(ctx, fmt.Sprintf(tmpl, table), args...)
		if err != nil {
			return storageError(err, "list keys of namespace %q", ns)
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return storageError(err, "scan key")
			}
			keys = append(keys, key)
		}
		if err := rows.Err(); err != nil {
			return storageError(err, "list keys of namespace %q", ns)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ListNamespaces(ctx context.Context) (namespaces []string, err error) {
	defer s.metrics.observe(opListNamespaces, time.Now(), &err)

	err = s.withConn(func(conn *sql.Conn) error {
		namespaces, err = listNamespaces(ctx, conn)
		return err
	})
	if err != nil {
		return nil, err
	}
	if namespaces == nil {
		namespaces = []string{}
	}
	return namespaces, nil
}
