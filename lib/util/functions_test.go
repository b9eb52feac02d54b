package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, Chunks(items, 3))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5, 6, 7}}, Chunks(items, 7))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5, 6, 7}}, Chunks(items, 100))
	assert.Len(t, Chunks(items, 0), 7)
	assert.Nil(t, Chunks([]int{}, 3))

	// appending to a chunk must not overwrite the next one
	chunks := Chunks(items, 2)
	_ = append(chunks[0], 99)
	assert.Equal(t, 3, chunks[1][0])
}

func TestParallelMapKeepsOrder(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}

	results, err := ParallelMap(context.Background(), items, func(i int) (int, error) {
		return i * 2, nil
	})
	require.NoError(t, err)
	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, i*2, r)
	}
}

func TestParallelMapEmptyAndSingle(t *testing.T) {
	results, err := ParallelMap(context.Background(), []string{}, func(s string) (int, error) { return len(s), nil })
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = ParallelMap(context.Background(), []string{"abc"}, func(s string) (int, error) { return len(s), nil })
	require.NoError(t, err)
	assert.Equal(t, []int{3}, results)
}

func TestParallelMapError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int64

	items := make([]int, 500)
	for i := range items {
		items[i] = i
	}

	_, err := ParallelMap(context.Background(), items, func(i int) (int, error) {
		calls.Add(1)
		if i == 10 {
			return 0, boom
		}
		return i, nil
	})
	require.ErrorIs(t, err, boom)
	assert.LessOrEqual(t, calls.Load(), int64(len(items)))
}

func TestParallelMapBounded(t *testing.T) {
	var running, peak atomic.Int64

	items := make([]int, 4*Workers()+8)
	_, err := ParallelMap(context.Background(), items, func(int) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(Workers()))
}

func TestIdentValidation(t *testing.T) {
	require.NoError(t, ValidateIdent("key", "plain"))
	require.NoError(t, ValidateIdent("key", "日本語 \"quoted\""))
	require.NoError(t, ValidateIdent("key", ""))

	err := ValidateIdent("namespace", string([]byte{0xff, 0xfe}))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDecode)

	s, err := StringFromBytes("key", []byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", s)

	_, err = StringFromBytes("key", []byte{0xc3, 0x28})
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.Contains(t, err.Error(), "at byte 0")

	_, err = StringFromBytes("body", []byte("äb\xffc"))
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.Contains(t, err.Error(), "at byte 3")
}

func TestExpiryMillis(t *testing.T) {
	assert.Nil(t, ExpiryMillis(1000, 0))
	assert.Nil(t, ExpiryMillis(1000, -time.Second))

	exp := ExpiryMillis(1000, 2*time.Second)
	require.NotNil(t, exp)
	assert.Equal(t, int64(3000), *exp)

	now := NowMillis()
	assert.InDelta(t, time.Now().UnixMilli(), now, 1000)
}
