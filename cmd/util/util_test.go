package util

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
	assert.Equal(t, "", WrapString(""))
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(`{"a":1}`, false)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = ParseValue(`{"a":1,"b":[true,"x"]}`, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": []any{true, "x"}}, v)

	v, err = ParseValue(`[1152921504606846977, 2.5]`, true)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1<<60 + 1), 2.5}, v)

	_, err = ParseValue(`{`, true)
	assert.Error(t, err)
}

func TestWriteValue(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "hello", "hello\n"},
		{"bytes", []byte{0x01, 'x'}, "\x01x"},
		{"number", float64(3), "3\n"},
		{"map", map[string]any{"a": "b"}, "{\n  \"a\": \"b\"\n}\n"},
		{"list", []any{float64(1)}, "[\n  1\n]\n"},
		{"struct", struct{ A int }{A: 1}, "{\n  \"A\": 1\n}\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteValue(&buf, tc.value))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestGetStoreConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("file", "/tmp/x.db")
	viper.Set("compression", "zstd:5")
	viper.Set("allow-gob", true)
	viper.Set("log-level", "debug")

	conf := GetStoreConfig()
	assert.Equal(t, common.StoreConfig{
		Path:        "/tmp/x.db",
		AllowGob:    true,
		Compression: "zstd:5",
		LogLevel:    "debug",
	}, conf)
}

func TestOpenStore(t *testing.T) {
	t.Cleanup(func() { common.InitLoggers("info") })

	conf := common.DefaultStoreConfig(filepath.Join(t.TempDir(), "cli.db"))
	s, err := OpenStore(context.Background(), conf)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	conf.LogLevel = "verbose"
	_, err = OpenStore(context.Background(), conf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConfig))

	conf.LogLevel = "info"
	conf.Compression = "lz4"
	_, err = OpenStore(context.Background(), conf)
	assert.True(t, errors.Is(err, common.ErrConfig))
}
