package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/sqkv/lib/codec"
	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store/sqlstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the cli
	EnvPrefix = "sqkv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags that configure the local store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "file"
	cmd.PersistentFlags().StringP(key, "f", "sqkv.db", WrapString("Path to the SQLite database file"))

	key = "compression"
	cmd.PersistentFlags().String(key, common.DefaultCompression, WrapString("Compression for new values of at least 1 KiB: snappy, zstd or zstd:LEVEL (1-22)"))

	key = "allow-gob"
	cmd.PersistentFlags().Bool(key, false, WrapString("Allow the gob codec. Only enable this for database files you trust"))

	key = "enforce-expiry"
	cmd.PersistentFlags().Bool(key, false, WrapString("Treat values whose ttl has passed as missing"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() common.StoreConfig {
	return common.StoreConfig{
		Path:          viper.GetString("file"),
		AllowGob:      viper.GetBool("allow-gob"),
		Compression:   viper.GetString("compression"),
		EnforceExpiry: viper.GetBool("enforce-expiry"),
		LogLevel:      viper.GetString("log-level"),
	}
}

// OpenStore initializes the loggers and opens the store described by the configuration
func OpenStore(ctx context.Context, conf common.StoreConfig) (*sqlstore.Store, error) {
	if err := initLoggers(conf.LogLevel); err != nil {
		return nil, err
	}
	return sqlstore.Open(ctx, conf)
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// initLoggers turns the panic of an invalid level into a config error
func initLoggers(level string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.Errorf(common.RetCConfig, "%v", r)
		}
	}()
	common.InitLoggers(level)
	return nil
}

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

// ParseValue converts a command line argument into a store value. With
// asJSON the argument is decoded as JSON, otherwise it is stored as string.
func ParseValue(arg string, asJSON bool) (any, error) {
	if !asJSON {
		return arg, nil
	}
	v, err := codec.UnmarshalJSON([]byte(arg))
	if err != nil {
		return nil, fmt.Errorf("value is not valid json: %w", err)
	}
	return v, nil
}

// WriteValue prints a store value: maps and slices as indented JSON, byte
// slices raw and everything else in its default format.
func WriteValue(w io.Writer, v any) error {
	switch v := v.(type) {
	case []byte:
		_, err := w.Write(v)
		return err
	case string:
		_, err := fmt.Fprintln(w, v)
		return err
	case map[string]any, []any:
		return WriteJSON(w, v)
	default:
		if b, err := json.Marshal(v); err == nil && len(b) > 0 && (b[0] == '{' || b[0] == '[') {
			return WriteJSON(w, v)
		}
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// WriteJSON prints v as JSON indented by two spaces
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
