package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
)

// RunStoreTests runs a comprehensive test suite for an IStore implementation.
// Every subtest gets a fresh store from factory and closes it afterwards.
func RunStoreTests(t *testing.T, name string, factory store.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("ValueShapes", func(t *testing.T) {
			testValueShapes(t, factory())
		})

		t.Run("Absence", func(t *testing.T) {
			testAbsence(t, factory())
		})

		t.Run("NamespaceIsolation", func(t *testing.T) {
			testNamespaceIsolation(t, factory())
		})

		t.Run("NamespaceNames", func(t *testing.T) {
			testNamespaceNames(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Batch", func(t *testing.T) {
			testBatch(t, factory())
		})

		t.Run("ListKeys", func(t *testing.T) {
			testListKeys(t, factory())
		})

		t.Run("Rename", func(t *testing.T) {
			testRename(t, factory)
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory())
		})

		t.Run("Concurrency", func(t *testing.T) {
			testConcurrency(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// mustGet fails the test if key is absent and returns its value
func mustGet(t testing.TB, s store.IStore, ns, key string) any {
	t.Helper()
	v, ok, err := s.Get(context.Background(), ns, key)
	if err != nil {
		t.Fatalf("Get(%q, %q) failed: %v", ns, key, err)
	}
	if !ok {
		t.Fatalf("Expected key %q to exist in namespace %q", key, ns)
	}
	return v
}

// mustBeAbsent fails the test if key exists
func mustBeAbsent(t testing.TB, s store.IStore, ns, key string) {
	t.Helper()
	_, ok, err := s.Get(context.Background(), ns, key)
	if err != nil {
		t.Fatalf("Get(%q, %q) failed: %v", ns, key, err)
	}
	if ok {
		t.Fatalf("Expected key %q to be absent in namespace %q", key, ns)
	}
}

// equalValues compares decoded values, treating byte slices by content
func equalValues(want, got any) bool {
	if wb, ok := want.([]byte); ok {
		gb, ok := got.([]byte)
		return ok && bytes.Equal(wb, gb)
	}
	return reflect.DeepEqual(want, got)
}

// sortedKeys returns the keys of a set in order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "ns", "key", "value1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v := mustGet(t, s, "ns", "key"); v != "value1" {
		t.Errorf("Expected value1, got %v", v)
	}

	// last write wins
	if err := s.Set(ctx, "ns", "key", []byte("value2")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v := mustGet(t, s, "ns", "key"); !equalValues([]byte("value2"), v) {
		t.Errorf("Expected value2 as bytes, got %v", v)
	}

	has, err := s.Has(ctx, "ns", "key")
	if err != nil || !has {
		t.Errorf("Expected Has to report true, got %v (err %v)", has, err)
	}
}

func testValueShapes(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	large := strings.Repeat("0123456789abcdef", 256)
	values := map[string]any{
		"empty-string": "",
		"string":       "hello",
		"unicode":      "grüße ✓ 日本",
		"large-string": large,
		"empty-bytes":  []byte{},
		"bytes":        []byte{0, 1, 2, 255},
		"large-bytes":  bytes.Repeat([]byte{7, 8, 9}, 2048),
		"number":       float64(3.5),
		"integer":      int64(1<<60 + 1),
		"bool":         false,
		"null":         nil,
		"list":         []any{"a", int64(1), true},
		"map":          map[string]any{"nested": map[string]any{"list": []any{int64(1), int64(2)}}},
		"large-map":    map[string]any{"body": large},
	}

	for key, want := range values {
		if err := s.Set(ctx, "shapes", key, want); err != nil {
			t.Fatalf("Set(%q) failed: %v", key, err)
		}
	}
	for key, want := range values {
		if got := mustGet(t, s, "shapes", key); !equalValues(want, got) {
			t.Errorf("Value of %q doesn't match after round trip:\nOriginal: %#v\nResult: %#v", key, want, got)
		}
	}

	// same values through the batch path
	if _, err := s.SetMany(ctx, "shapes-batch", values); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}
	got, err := s.GetMany(ctx, "shapes-batch", sortedKeys(values))
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("Expected %d values, got %d", len(values), len(got))
	}
	for key, want := range values {
		if !equalValues(want, got[key]) {
			t.Errorf("Batch value of %q doesn't match:\nOriginal: %#v\nResult: %#v", key, want, got[key])
		}
	}
}

func testAbsence(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	// never written namespace
	mustBeAbsent(t, s, "ghost", "key")
	if has, err := s.Has(ctx, "ghost", "key"); err != nil || has {
		t.Errorf("Expected Has=false without error, got %v (err %v)", has, err)
	}
	if found, err := s.HasMany(ctx, "ghost", []string{"a", "b"}); err != nil || len(found) != 0 {
		t.Errorf("Expected empty HasMany, got %v (err %v)", found, err)
	}
	if vals, err := s.GetMany(ctx, "ghost", []string{"a", "b"}); err != nil || len(vals) != 0 {
		t.Errorf("Expected empty GetMany, got %v (err %v)", vals, err)
	}
	if keys, err := s.ListKeys(ctx, "ghost"); err != nil || len(keys) != 0 {
		t.Errorf("Expected no keys, got %v (err %v)", keys, err)
	}
	if n, err := s.Delete(ctx, "ghost", "key"); err != nil || n != 0 {
		t.Errorf("Expected Delete=0, got %d (err %v)", n, err)
	}
	if n, err := s.DeleteMany(ctx, "ghost", []string{"a"}); err != nil || n != 0 {
		t.Errorf("Expected DeleteMany=0, got %d (err %v)", n, err)
	}

	// reads must not create the namespace
	namespaces, err := s.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}
	for _, ns := range namespaces {
		if ns == "ghost" {
			t.Errorf("Read operations must not create namespace tables")
		}
	}

	// existing namespace, missing key
	if err := s.Set(ctx, "real", "present", "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	mustBeAbsent(t, s, "real", "missing")
	found, err := s.HasMany(ctx, "real", []string{"present", "missing"})
	if err != nil {
		t.Fatalf("HasMany failed: %v", err)
	}
	if _, ok := found["present"]; !ok || len(found) != 1 {
		t.Errorf("Expected only 'present' in %v", found)
	}
}

func testNamespaceIsolation(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "a", "k", "from-a"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "b", "k", "from-b"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v := mustGet(t, s, "a", "k"); v != "from-a" {
		t.Errorf("Expected from-a, got %v", v)
	}
	if v := mustGet(t, s, "b", "k"); v != "from-b" {
		t.Errorf("Expected from-b, got %v", v)
	}

	if _, err := s.Delete(ctx, "a", "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	mustBeAbsent(t, s, "a", "k")
	if v := mustGet(t, s, "b", "k"); v != "from-b" {
		t.Errorf("Delete in one namespace must not affect another, got %v", v)
	}

	// namespaces differing in case are distinct: a store either keeps them
	// apart or refuses to create the second one
	if err := s.Set(ctx, "Mixed", "k", "upper"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	mustBeAbsent(t, s, "mixed", "k")
	if keys, err := s.ListKeys(ctx, "mixed"); err != nil || len(keys) != 0 {
		t.Errorf("Expected no keys in namespace mixed, got %v (err %v)", keys, err)
	}
	if n, err := s.Delete(ctx, "mixed", "k"); err != nil || n != 0 {
		t.Errorf("Delete in namespace mixed must not remove Mixed/k, got n=%d err=%v", n, err)
	}
	if err := s.Set(ctx, "mixed", "k", "lower"); err == nil {
		if v := mustGet(t, s, "mixed", "k"); v != "lower" {
			t.Errorf("Expected lower, got %v", v)
		}
	}
	if v := mustGet(t, s, "Mixed", "k"); v != "upper" {
		t.Errorf("Expected upper, got %v", v)
	}
}

func testNamespaceNames(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	names := []string{
		"",
		"plain",
		"with space",
		`with"quote`,
		`""`,
		"it's",
		"日本語",
		"select",
		"drop table x; --",
		"tl_nested",
	}

	for i, ns := range names {
		if err := s.Set(ctx, ns, "key", fmt.Sprintf("value-%d", i)); err != nil {
			t.Fatalf("Set in namespace %q failed: %v", ns, err)
		}
	}
	for i, ns := range names {
		if v := mustGet(t, s, ns, "key"); v != fmt.Sprintf("value-%d", i) {
			t.Errorf("Namespace %q: expected value-%d, got %v", ns, i, v)
		}
	}

	listed, err := s.ListNamespaces(ctx)
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}
	want := append([]string(nil), names...)
	sort.Strings(want)
	sort.Strings(listed)
	if !reflect.DeepEqual(want, listed) {
		t.Errorf("ListNamespaces mismatch:\nExpected: %q\nGot: %q", want, listed)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "ns", "key", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	n, err := s.Delete(ctx, "ns", "key")
	if err != nil || n != 1 {
		t.Fatalf("Expected Delete=1, got %d (err %v)", n, err)
	}
	mustBeAbsent(t, s, "ns", "key")

	n, err = s.Delete(ctx, "ns", "key")
	if err != nil || n != 0 {
		t.Errorf("Expected second Delete=0, got %d (err %v)", n, err)
	}
}

func testBatch(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	const count = 1500
	values := make(map[string]any, count)
	for i := 0; i < count; i++ {
		values[fmt.Sprintf("key-%05d", i)] = fmt.Sprintf("value-%d", i)
	}

	n, err := s.SetMany(ctx, "batch", values)
	if err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}
	if n != count {
		t.Errorf("Expected SetMany=%d, got %d", count, n)
	}

	keys := append(sortedKeys(values), "missing-1", "missing-2")
	got, err := s.GetMany(ctx, "batch", keys)
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if len(got) != count {
		t.Fatalf("Expected %d values, got %d", count, len(got))
	}
	for k, v := range values {
		if got[k] != v {
			t.Fatalf("Value of %q: expected %v, got %v", k, v, got[k])
		}
	}

	found, err := s.HasMany(ctx, "batch", keys)
	if err != nil {
		t.Fatalf("HasMany failed: %v", err)
	}
	if len(found) != count {
		t.Errorf("Expected %d found keys, got %d", count, len(found))
	}

	// empty inputs
	if n, err := s.SetMany(ctx, "batch", map[string]any{}); err != nil || n != 0 {
		t.Errorf("Expected SetMany of nothing to return 0, got %d (err %v)", n, err)
	}
	if got, err := s.GetMany(ctx, "batch", nil); err != nil || len(got) != 0 {
		t.Errorf("Expected GetMany of nothing to be empty, got %v (err %v)", got, err)
	}

	deleted, err := s.DeleteMany(ctx, "batch", keys)
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if deleted != count {
		t.Errorf("Expected DeleteMany=%d, got %d", count, deleted)
	}
	if keys, err := s.ListKeys(ctx, "batch"); err != nil || len(keys) != 0 {
		t.Errorf("Expected namespace to be empty, got %d keys (err %v)", len(keys), err)
	}
}

func testListKeys(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if _, err := s.SetMany(ctx, "list", map[string]any{
		"user:1": "a", "user:2": "b", "order:1": "c",
	}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	keys, err := s.ListKeys(ctx, "list")
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	sort.Strings(keys)
	if !reflect.DeepEqual([]string{"order:1", "user:1", "user:2"}, keys) {
		t.Errorf("Unexpected keys: %v", keys)
	}

	keys, err = s.ListKeysLike(ctx, "list", "user:%")
	if err != nil {
		t.Fatalf("ListKeysLike failed: %v", err)
	}
	sort.Strings(keys)
	if !reflect.DeepEqual([]string{"user:1", "user:2"}, keys) {
		t.Errorf("Unexpected filtered keys: %v", keys)
	}

	keys, err = s.ListKeysLike(ctx, "ghost", "%")
	if err != nil || len(keys) != 0 {
		t.Errorf("Expected no keys for missing namespace, got %v (err %v)", keys, err)
	}
}

func testRename(t *testing.T, factory store.Factory) {
	ctx := context.Background()

	cases := []struct {
		name    string
		initial map[string]any
		renames map[string]string
		opts    store.RenameOptions
		want    int
		wantErr *common.Error
		final   map[string]any // expected content afterwards (nil value = absent)
	}{
		{
			name:    "Basic",
			initial: map[string]any{"a": "1", "b": "2", "c": "3"},
			renames: map[string]string{"a": "x", "b": "y"},
			want:    2,
			final:   map[string]any{"x": "1", "y": "2", "c": "3", "a": nil, "b": nil},
		},
		{
			name:    "Identity",
			initial: map[string]any{"a": "1"},
			renames: map[string]string{"a": "a"},
			want:    1,
			final:   map[string]any{"a": "1"},
		},
		{
			name:    "Empty",
			initial: map[string]any{"a": "1"},
			renames: map[string]string{},
			want:    0,
			final:   map[string]any{"a": "1"},
		},
		{
			name:    "MissingSource",
			initial: map[string]any{"a": "1"},
			renames: map[string]string{"a": "x", "missing": "y"},
			wantErr: common.ErrNotFound,
			final:   map[string]any{"a": "1", "x": nil},
		},
		{
			name:    "MissingSourceAllowed",
			initial: map[string]any{"a": "1"},
			renames: map[string]string{"a": "x", "missing": "y"},
			opts:    store.RenameOptions{AllowMissing: true},
			want:    1,
			final:   map[string]any{"x": "1", "y": nil, "a": nil},
		},
		{
			name:    "Conflict",
			initial: map[string]any{"a": "1", "b": "2"},
			renames: map[string]string{"a": "b"},
			wantErr: common.ErrConflict,
			final:   map[string]any{"a": "1", "b": "2"},
		},
		{
			name:    "Overwrite",
			initial: map[string]any{"a": "1", "b": "2"},
			renames: map[string]string{"a": "b"},
			opts:    store.RenameOptions{Overwrite: true},
			want:    1,
			final:   map[string]any{"a": nil, "b": "1"},
		},
		{
			name:    "DuplicateTarget",
			initial: map[string]any{"a": "1", "b": "2"},
			renames: map[string]string{"a": "x", "b": "x"},
			opts:    store.RenameOptions{Overwrite: true},
			wantErr: common.ErrConflict,
			final:   map[string]any{"a": "1", "b": "2", "x": nil},
		},
		{
			name:    "Swap",
			initial: map[string]any{"a": "1", "b": "2"},
			renames: map[string]string{"a": "b", "b": "a"},
			want:    2,
			final:   map[string]any{"a": "2", "b": "1"},
		},
		{
			name:    "Cycle",
			initial: map[string]any{"a": "1", "b": "2", "c": "3"},
			renames: map[string]string{"a": "b", "b": "c", "c": "a"},
			want:    3,
			final:   map[string]any{"a": "3", "b": "1", "c": "2"},
		},
		{
			name:    "Chain",
			initial: map[string]any{"a": "1", "b": "2"},
			renames: map[string]string{"a": "b", "b": "c"},
			want:    2,
			final:   map[string]any{"a": nil, "b": "1", "c": "2"},
		},
		{
			name:    "TargetIsIdentityKey",
			initial: map[string]any{"a": "1", "b": "2"},
			renames: map[string]string{"a": "a", "b": "a"},
			wantErr: common.ErrConflict,
			final:   map[string]any{"a": "1", "b": "2"},
		},
		{
			name:    "PreservesStructuredValue",
			initial: map[string]any{"old": map[string]any{"nested": []any{int64(1), int64(2)}}, "big": strings.Repeat("x", 10000)},
			renames: map[string]string{"old": "new", "big": "bigger"},
			want:    2,
			final:   map[string]any{"new": map[string]any{"nested": []any{int64(1), int64(2)}}, "bigger": strings.Repeat("x", 10000)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := factory()
			defer s.Close()

			if _, err := s.SetMany(ctx, "ns", tc.initial); err != nil {
				t.Fatalf("SetMany failed: %v", err)
			}

			n, err := s.Rename(ctx, "ns", tc.renames, tc.opts)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Expected error %v, got %v", tc.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("Rename failed: %v", err)
				}
				if n != tc.want {
					t.Errorf("Expected Rename=%d, got %d", tc.want, n)
				}
			}

			for key, want := range tc.final {
				if want == nil {
					mustBeAbsent(t, s, "ns", key)
					continue
				}
				if got := mustGet(t, s, "ns", key); !equalValues(want, got) {
					t.Errorf("Key %q: expected %v, got %v", key, want, got)
				}
			}
		})
	}

	t.Run("MissingNamespace", func(t *testing.T) {
		s := factory()
		defer s.Close()

		_, err := s.Rename(ctx, "ghost", map[string]string{"a": "b"}, store.RenameOptions{})
		if !errors.Is(err, common.ErrNotFound) || !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("Expected not found error, got %v", err)
		}

		n, err := s.Rename(ctx, "ghost", map[string]string{"a": "b"}, store.RenameOptions{AllowMissing: true})
		if err != nil || n != 0 {
			t.Errorf("Expected 0 without error, got %d (err %v)", n, err)
		}
	})
}

func testClose(t *testing.T, s store.IStore) {
	ctx := context.Background()

	if err := s.Set(ctx, "ns", "key", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close must be a no-op, got %v", err)
	}

	checks := map[string]error{}
	_, _, checks["Get"] = s.Get(ctx, "ns", "key")
	checks["Set"] = s.Set(ctx, "ns", "key", "v")
	_, checks["Has"] = s.Has(ctx, "ns", "key")
	_, checks["Delete"] = s.Delete(ctx, "ns", "key")
	_, checks["SetMany"] = s.SetMany(ctx, "ns", map[string]any{"k": "v"})
	_, checks["GetMany"] = s.GetMany(ctx, "ns", []string{"k"})
	_, checks["ListKeys"] = s.ListKeys(ctx, "ns")
	_, checks["ListNamespaces"] = s.ListNamespaces(ctx)
	_, checks["Rename"] = s.Rename(ctx, "ns", map[string]string{"a": "b"}, store.RenameOptions{})

	for op, err := range checks {
		if !errors.Is(err, common.ErrClosed) {
			t.Errorf("%s after Close: expected closed error, got %v", op, err)
		}
	}
}

func testConcurrency(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ns := fmt.Sprintf("worker-%d", w%3)
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("%d-%d", w, i)
				if err := s.Set(ctx, ns, key, key); err != nil {
					errs <- err
					return
				}
				v, ok, err := s.Get(ctx, ns, key)
				if err != nil || !ok || v != key {
					errs <- fmt.Errorf("read back %q: %v %v %v", key, v, ok, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	total := 0
	for i := 0; i < 3; i++ {
		keys, err := s.ListKeys(ctx, fmt.Sprintf("worker-%d", i))
		if err != nil {
			t.Fatalf("ListKeys failed: %v", err)
		}
		total += len(keys)
	}
	if total != workers*perWorker {
		t.Errorf("Expected %d keys in total, got %d", workers*perWorker, total)
	}
}
