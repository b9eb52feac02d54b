package testing

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/sqkv/lib/store"
)

// RunStoreBenchmarks runs all benchmarks for an IStore implementation
func RunStoreBenchmarks(b *testing.B, name string, factory store.Factory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory())
		})

		b.Run("SetLargeValue", func(b *testing.B) {
			benchmarkSetLargeValue(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("Has(not)", func(b *testing.B) {
			benchmarkHasNot(b, factory())
		})

		b.Run("SetMany", func(b *testing.B) {
			benchmarkSetMany(b, factory())
		})

		b.Run("GetMany", func(b *testing.B) {
			benchmarkGetMany(b, factory())
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})
	ctx := context.Background()

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("key-%d", counter.Add(1))
			if err := s.Set(ctx, "bench", key, "value"); err != nil {
				b.Errorf("Set failed: %v", err)
				return
			}
		}
	})
}

// Benchmark for Set with values above the compression threshold
func benchmarkSetLargeValue(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})
	ctx := context.Background()
	value := strings.Repeat("large value ", 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Set(ctx, "bench", fmt.Sprintf("key-%d", i%1000), value); err != nil {
			b.Fatalf("Set failed: %v", err)
		}
	}
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})
	ctx := context.Background()

	const keys = 1000
	values := make(map[string]any, keys)
	for i := 0; i < keys; i++ {
		values[fmt.Sprintf("key-%d", i)] = map[string]any{"id": int64(i), "name": "bench"}
	}
	if _, err := s.SetMany(ctx, "bench", values); err != nil {
		b.Fatalf("SetMany failed: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			if _, _, err := s.Get(ctx, "bench", fmt.Sprintf("key-%d", r.Intn(keys))); err != nil {
				b.Errorf("Get failed: %v", err)
				return
			}
		}
	})
}

// Benchmark for Has on missing keys
func benchmarkHasNot(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})
	ctx := context.Background()
	if err := s.Set(ctx, "bench", "present", "v"); err != nil {
		b.Fatalf("Set failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Has(ctx, "bench", fmt.Sprintf("missing-%d", i)); err != nil {
			b.Fatalf("Has failed: %v", err)
		}
	}
}

// Benchmark for SetMany with 100 records per call
func benchmarkSetMany(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})
	ctx := context.Background()

	batch := make(map[string]any, 100)
	for i := 0; i < 100; i++ {
		batch[fmt.Sprintf("key-%d", i)] = map[string]any{"id": int64(i), "body": strings.Repeat("x", i*20)}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.SetMany(ctx, fmt.Sprintf("bench-%d", i%10), batch); err != nil {
			b.Fatalf("SetMany failed: %v", err)
		}
	}
}

// Benchmark for GetMany with 100 keys per call
func benchmarkGetMany(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})
	ctx := context.Background()

	batch := make(map[string]any, 100)
	keys := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		batch[key] = map[string]any{"id": int64(i), "body": strings.Repeat("x", i*20)}
		keys = append(keys, key)
	}
	if _, err := s.SetMany(ctx, "bench", batch); err != nil {
		b.Fatalf("SetMany failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.GetMany(ctx, "bench", keys); err != nil {
			b.Fatalf("GetMany failed: %v", err)
		}
	}
}

// Benchmark for a read heavy mix of operations
func benchmarkMixedUsage(b *testing.B, s store.IStore) {
	b.Cleanup(func() {
		_ = s.Close()
	})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(500))
			var err error
			switch op := r.Intn(10); {
			case op < 6:
				_, _, err = s.Get(ctx, "mixed", key)
			case op < 9:
				err = s.Set(ctx, "mixed", key, "value")
			default:
				_, err = s.Delete(ctx, "mixed", key)
			}
			if err != nil {
				b.Errorf("Operation failed: %v", err)
				return
			}
		}
	})
}
