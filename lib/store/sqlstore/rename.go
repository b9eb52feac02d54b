package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
	"github.com/ValentinKolb/sqkv/lib/util"
)

// bindsPerRename is the number of parameters one pair uses in renameSQL
const bindsPerRename = 3

type renamePair struct {
	from, to string
}

// Rename moves keys inside ns in one transaction.
//
// Renamed rows are parked with a negative version while the statements run
// and restored to version 0 before the commit. This keeps swaps and cycles
// (a->b, b->a) free of primary key collisions even when the pairs of a cycle
// end up in different chunks.
func (s *Store) Rename(ctx context.Context, ns string, renames map[string]string, opts store.RenameOptions) (n int, err error) {
	defer s.metrics.observe(opRename, time.Now(), &err)
	if err = validateIdents(ns); err != nil {
		return 0, err
	}

	froms := make([]string, 0, len(renames))
	for from, to := range renames {
		if err = validateIdents(ns, from, to); err != nil {
			return 0, err
		}
		froms = append(froms, from)
	}
	sort.Strings(froms)

	// identity pairs always succeed and never touch the database
	noops := 0
	moves := make([]renamePair, 0, len(froms))
	for _, from := range froms {
		if to := renames[from]; to == from {
			noops++
		} else {
			moves = append(moves, renamePair{from: from, to: to})
		}
	}
	if len(moves) == 0 {
		return noops, nil
	}

	renamed := 0
	ran, err := s.withNamespace(ctx, ns, func(conn *sql.Conn, table string) error {
		return withTx(ctx, conn, func(tx *sql.Tx) error {
			r, err := s.renameTx(ctx, tx, ns, table, moves, opts)
			renamed = r
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	if !ran {
		if !opts.AllowMissing {
			return 0, common.Errorf(common.RetCNotFound, "namespace %q does not exist", ns)
		}
		return noops, nil
	}

	logger.WithField("namespace", ns).Debugf("renamed %d keys", renamed)
	s.metrics.records(opRename, renamed)
	return noops + renamed, nil
}

// renameTx validates and applies moves inside tx and returns the number of renamed rows
func (s *Store) renameTx(ctx context.Context, tx *sql.Tx, ns, table string, moves []renamePair, opts store.RenameOptions) (int, error) {
	froms := make([]string, len(moves))
	for i, m := range moves {
		froms[i] = m.from
	}

	// sources
	existing, err := existingKeys(ctx, tx, table, froms, s.maxBinds)
	if err != nil {
		return 0, err
	}
	present := make([]renamePair, 0, len(moves))
	for _, m := range moves {
		if _, ok := existing[m.from]; ok {
			present = append(present, m)
		} else if !opts.AllowMissing {
			return 0, common.Errorf(common.RetCNotFound, "key %q does not exist in namespace %q", m.from, ns)
		}
	}
	if len(present) == 0 {
		return 0, nil
	}

	// targets
	sources := make(map[string]struct{}, len(present))
	for _, m := range present {
		sources[m.from] = struct{}{}
	}
	targets := make(map[string]struct{}, len(present))
	var outside []string
	for _, m := range present {
		if _, dup := targets[m.to]; dup {
			return 0, common.Errorf(common.RetCConflict, "key %q already exists in namespace %q: it is the target of more than one rename", m.to, ns)
		}
		targets[m.to] = struct{}{}
		if _, moving := sources[m.to]; !moving {
			outside = append(outside, m.to)
		}
	}

	taken, err := existingKeys(ctx, tx, table, outside, s.maxBinds)
	if err != nil {
		return 0, err
	}
	if len(taken) > 0 {
		occupied := make([]string, 0, len(taken))
		for k := range taken {
			occupied = append(occupied, k)
		}
		sort.Strings(occupied)

		if !opts.Overwrite {
			return 0, common.Errorf(common.RetCConflict, "key %q already exists in namespace %q", occupied[0], ns)
		}
		if _, err := deleteKeys(ctx, tx, table, occupied, s.maxBinds); err != nil {
			return 0, err
		}
	}

	// move and park
	renamed := 0
	for _, chunk := range util.Chunks(present, max(s.maxBinds/bindsPerRename, 1)) {
		args := make([]any, 0, len(chunk)*bindsPerRename)
		for _, m := range chunk {
			args = append(args, m.from, m.to)
		}
		for _, m := range chunk {
			args = append(args, m.from)
		}

		res, err := tx.ExecContext(ctx, renameSQL(table, len(chunk)), args...)
		if err != nil {
			return 0, storageError(err, "rename keys in namespace %q", ns)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, storageError(err, "rename keys in namespace %q", ns)
		}
		renamed += int(affected)
	}

	// restore
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(restoreParkedSQL, table)); err != nil {
		return 0, storageError(err, "restore renamed keys in namespace %q", ns)
	}
	return renamed, nil
}
