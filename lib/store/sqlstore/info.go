package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/sqkv/lib/store"
	"github.com/ValentinKolb/sqkv/lib/util"
)

// Info scans every namespace table and summarizes record counts and payload sizes.
func (s *Store) Info(ctx context.Context) (info store.Info, err error) {
	defer s.metrics.observe(opInfo, time.Now(), &err)

	info = store.Info{
		Path:          s.cfg.Path,
		Compression:   s.pipeline.Settings().Compression.String(),
		AllowGob:      s.cfg.AllowGob,
		MaxBindParams: s.maxBinds,
		Namespaces:    []store.NamespaceInfo{},
	}
	hist := util.NewSizeHistogram()
	now := util.NowMillis()

	err = s.withConn(func(conn *sql.Conn) error {
		var pageCount, pageSize int64
		if err := conn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
			return storageError(err, "read page count")
		}
		if err := conn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
			return storageError(err, "read page size")
		}
		info.SizeBytes = pageCount * pageSize

		namespaces, err := listNamespaces(ctx, conn)
		if err != nil {
			return err
		}
		for _, ns := range namespaces {
			nsInfo, err := scanNamespace(ctx, conn, ns, s.table(ns), now, hist)
			if err != nil {
				return err
			}
			info.Namespaces = append(info.Namespaces, nsInfo)
		}
		return nil
	})
	if err != nil {
		return store.Info{}, err
	}

	counts := make([]float64, len(info.Namespaces))
	for i, ns := range info.Namespaces {
		counts[i] = float64(ns.Records)
	}
	info.Distribution = util.NewDistributionStats(counts)
	info.PayloadP50 = hist.Percentile(50)
	info.PayloadP95 = hist.Percentile(95)
	info.PayloadP99 = hist.Percentile(99)
	return info, nil
}

// scanNamespace reads the size columns of every record of one namespace
func scanNamespace(ctx context.Context, conn *sql.Conn, ns, table string, now int64, hist *util.SizeHistogram) (store.NamespaceInfo, error) {
	info := store.NamespaceInfo{Name: ns}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(scanInfoSQL, table))
	if err != nil {
		return info, storageError(err, "scan namespace %q", ns)
	}

	var sizes []float64
	for rows.Next() {
		var valueLen, chainLen int64
		var expires sql.NullInt64
		if err := rows.Scan(&valueLen, &chainLen, &expires); err != nil {
			_ = rows.Close()
			return info, storageError(err, "scan namespace %q", ns)
		}

		info.Records++
		info.PayloadBytes += valueLen
		if chainLen > 1 {
			info.Compressed++
		}
		if expires.Valid && expires.Int64 <= now {
			info.Expired++
		}
		sizes = append(sizes, float64(valueLen))
		hist.AddSample(valueLen)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return info, storageError(err, "scan namespace %q", ns)
	}

	info.Payload = util.NewStats(sizes)
	return info, nil
}
