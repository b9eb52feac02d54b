package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/sqkv/lib/codec"
	"github.com/ValentinKolb/sqkv/lib/util"
)

// pendingRecord is an encoded record waiting to be written
type pendingRecord struct {
	key     string
	encoded codec.Encoded
}

// args returns the statement arguments of the record for the upsert templates
func (r pendingRecord) args(now int64, expires *int64) []any {
	data := r.encoded.Data
	if data == nil {
		data = []byte{}
	}
	return []any{r.key, r.encoded.Chain.Bytes(), data, now, expires}
}

// --------------------------------------------------------------------------
// Set
// --------------------------------------------------------------------------

func (s *Store) Set(ctx context.Context, ns, key string, value any) error {
	return s.SetE(ctx, ns, key, value, 0)
}

func (s *Store) SetE(ctx context.Context, ns, key string, value any, ttl time.Duration) (err error) {
	defer s.metrics.observe(opSet, time.Now(), &err)
	if err = validateIdents(ns, key); err != nil {
		return err
	}

	encoded, err := s.pipeline.Encode(value)
	if err != nil {
		return err
	}
	rec := pendingRecord{key: key, encoded: encoded}
	now := util.NowMillis()

	return s.withConn(func(conn *sql.Conn) error {
		if err := s.ensureNamespace(ctx, conn, ns); err != nil {
			return err
		}
		stmt, err := s.prepared(ctx, conn, s.query(ns, upsertOneSQL))
		if err != nil {
			return storageError(err, "prepare set")
		}
		if _, err := stmt.ExecContext(ctx, rec.args(now, util.ExpiryMillis(now, ttl))...); err != nil {
			return storageError(err, "set %q in namespace %q", key, ns)
		}
		return nil
	})
}

func (s *Store) SetMany(ctx context.Context, ns string, values map[string]any) (int, error) {
	return s.SetManyE(ctx, ns, values, 0)
}

func (s *Store) SetManyE(ctx context.Context, ns string, values map[string]any, ttl time.Duration) (n int, err error) {
	defer s.metrics.observe(opSetMany, time.Now(), &err)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err = validateIdents(ns, keys...); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	// encode outside the connection lock
	records, err := util.ParallelMap(ctx, keys, func(key string) (pendingRecord, error) {
		encoded, err := s.pipeline.Encode(values[key])
		if err != nil {
			return pendingRecord{}, err
		}
		return pendingRecord{key: key, encoded: encoded}, nil
	})
	if err != nil {
		return 0, err
	}

	now := util.NowMillis()
	expires := util.ExpiryMillis(now, ttl)
	rowsPerStmt := max(s.maxBinds/bindsPerRow, 1)

	err = s.withConn(func(conn *sql.Conn) error {
		if err := s.ensureNamespace(ctx, conn, ns); err != nil {
			return err
		}
		table := s.table(ns)

		return withTx(ctx, conn, func(tx *sql.Tx) error {
			for _, chunk := range util.Chunks(records, rowsPerStmt) {
				args := make([]any, 0, len(chunk)*bindsPerRow)
				for _, rec := range chunk {
					args = append(args, rec.args(now, expires)...)
				}
				if _, err := tx.ExecContext(ctx, upsertManySQL(table, len(chunk)), args...); err != nil {
					return storageError(err, "set many in namespace %q", ns)
				}
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	logger.WithField("namespace", ns).Debugf("wrote %d records", len(records))
	s.metrics.records(opSetMany, len(records))
	return len(records), nil
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func (s *Store) Delete(ctx context.Context, ns, key string) (n int, err error) {
	defer s.metrics.observe(opDelete, time.Now(), &err)
	if err = validateIdents(ns, key); err != nil {
		return 0, err
	}

	_, err = s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		stmt, err := s.prepared(ctx, conn, fmt.Sprintf(deleteOneSQL, table))
		if err != nil {
			return storageError(err, "prepare delete")
		}

		res, err := stmt.ExecContext(ctx, key)
		if err != nil {
			return storageError(err, "delete %q from namespace %q", key, ns)
		}
		affected, err := res.RowsAffected()
		n = int(affected)
		return storageError(err, "delete %q from namespace %q", key, ns)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) DeleteMany(ctx context.Context, ns string, keys []string) (n int, err error) {
	defer s.metrics.observe(opDeleteMany, time.Now(), &err)
	if err = validateIdents(ns, keys...); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	_, err = s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		return withTx(ctx, conn, func(tx *sql.Tx) error {
			deleted, err := deleteKeys(ctx, tx, table, keys, s.maxBinds)
			n = deleted
			return err
		})
	})
	if err != nil {
		return 0, err
	}

	logger.WithField("namespace", ns).Debugf("deleted %d records", n)
	s.metrics.records(opDeleteMany, n)
	return n, nil
}

// deleteKeys removes keys from table in chunks of at most maxBinds keys and
// returns the number of removed rows. A missing table is returned unwrapped.
func deleteKeys(ctx context.Context, tx *sql.Tx, table string, keys []string, maxBinds int) (int, error) {
	total := 0
	for _, chunk := range util.Chunks(keys, maxBinds) {
		res, err := tx.ExecContext(ctx, deleteManySQL(table, len(chunk)), stringArgs(chunk)...)
		if err != nil {
			return 0, storageError(err, "delete keys")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, storageError(err, "delete keys")
		}
		total += int(affected)
	}
	return total, nil
}
