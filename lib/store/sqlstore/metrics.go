package sqlstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/VictoriaMetrics/metrics"
)

// Operation names used as metric labels
const (
	opSet            = "set"
	opSetMany        = "set_many"
	opGet            = "get"
	opGetMany        = "get_many"
	opHas            = "has"
	opHasMany        = "has_many"
	opDelete         = "delete"
	opDeleteMany     = "delete_many"
	opListKeys       = "list_keys"
	opListNamespaces = "list_namespaces"
	opRename         = "rename"
	opInfo           = "info"
)

// storeMetrics collects the metrics of one store in its own set, so several
// stores in one process do not share counters.
type storeMetrics struct {
	set *metrics.Set
}

func newStoreMetrics(namespaces func() int) *storeMetrics {
	m := &storeMetrics{set: metrics.NewSet()}
	m.set.NewGauge("sqkv_namespaces_known", func() float64 {
		return float64(namespaces())
	})
	return m
}

// observe records one finished operation. It is meant to be deferred with a
// pointer to the named error result.
func (m *storeMetrics) observe(op string, start time.Time, err *error) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`sqkv_operations_total{op=%q}`, op)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`sqkv_operation_duration_seconds{op=%q}`, op)).UpdateDuration(start)
	if *err != nil {
		code := common.CodeOf(*err)
		m.set.GetOrCreateCounter(fmt.Sprintf(`sqkv_operation_errors_total{op=%q,code=%q}`, op, code)).Inc()
	}
}

// records counts the records touched by an operation
func (m *storeMetrics) records(op string, n int) {
	if n <= 0 {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`sqkv_records_total{op=%q}`, op)).Add(n)
}

func (m *storeMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
}
