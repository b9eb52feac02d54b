package util

import (
	"context"
	"runtime"
	"time"
	"unicode/utf8"

	"github.com/ValentinKolb/sqkv/lib/common"
	"golang.org/x/sync/errgroup"
)

// --------------------------------------------------------------------------
// Batching
// --------------------------------------------------------------------------

// Chunks splits items into consecutive slices of at most size elements.
// The returned slices share memory with items. size < 1 is treated as 1.
func Chunks[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// --------------------------------------------------------------------------
// Parallel execution
// --------------------------------------------------------------------------

// Workers returns the size of the worker pool used by ParallelMap
func Workers() int {
	return runtime.GOMAXPROCS(0)
}

// ParallelMap applies fn to every item on a bounded pool of goroutines and
// returns the results in input order. The first error cancels the remaining
// work and is returned.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))

	// not worth a goroutine
	if len(items) == 1 {
		r, err := fn(items[0])
		if err != nil {
			return nil, err
		}
		results[0] = r
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers())

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := fn(item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// --------------------------------------------------------------------------
// Identifiers
// --------------------------------------------------------------------------

// ValidateIdent checks that a namespace or key is valid UTF-8.
func ValidateIdent(kind, s string) error {
	if !utf8.ValidString(s) {
		return common.Errorf(common.RetCDecode, "%s is not valid utf-8: %q", kind, s)
	}
	return nil
}

// StringFromBytes converts raw bytes (request bodies, identifiers) to a
// string, rejecting invalid UTF-8. The error names the offset of the first
// invalid byte rather than quoting b.
func StringFromBytes(kind string, b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	offset := 0
	for offset < len(b) {
		r, size := utf8.DecodeRune(b[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}
	return "", common.Errorf(common.RetCDecode, "%s is not valid utf-8 at byte %d", kind, offset)
}

// --------------------------------------------------------------------------
// Time
// --------------------------------------------------------------------------

// NowMillis returns the current unix time in milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ExpiryMillis returns the absolute expiry for a record written at now with
// the given ttl. ttl <= 0 means the record never expires and nil is returned.
func ExpiryMillis(now int64, ttl time.Duration) *int64 {
	if ttl <= 0 {
		return nil
	}
	exp := now + ttl.Milliseconds()
	return &exp
}
