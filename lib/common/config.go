package common

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultCompression     = "snappy"
	DefaultLogLevel        = "info"
	DefaultEndpoint        = "localhost:8080"
	DefaultMaxBodyBytes    = 64 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// StoreConfig holds the construction-time parameters of a store.
type StoreConfig struct {
	// Path of the SQLite database file (":memory:" is allowed but private to the store)
	Path string

	// AllowGob permits encoding and decoding values with the gob codec.
	// Decoding gob data reconstructs arbitrary registered Go types, so this is off by default.
	AllowGob bool

	// Compression selects the compression codec for new writes: "snappy", "zstd" or "zstd:<1-22>"
	Compression string

	// EnforceExpiry makes Get and GetMany treat expired records as absent.
	EnforceExpiry bool

	// Logging configuration
	LogLevel string
}

// DefaultStoreConfig returns the default configuration for the given path.
func DefaultStoreConfig(path string) StoreConfig {
	return StoreConfig{
		Path:        path,
		Compression: DefaultCompression,
		LogLevel:    DefaultLogLevel,
	}
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Database File", c.Path)

	addSection("Codecs")
	addField("Compression", c.Compression)
	addField("Allow Gob", fmt.Sprintf("%t", c.AllowGob))
	addField("Enforce Expiry", fmt.Sprintf("%t", c.EnforceExpiry))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds the parameters of the HTTP server in front of a store.
type ServerConfig struct {
	// Endpoint is the address the server listens on (e.g. "localhost:8080")
	Endpoint string

	// MaxBodyBytes limits the size of request bodies
	MaxBodyBytes int64

	// ShutdownTimeout is the time in-flight requests get to finish on shutdown
	ShutdownTimeout time.Duration

	// Store is the configuration of the served store
	Store StoreConfig
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder
	sb.WriteString("\nSERVER\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Endpoint", c.Endpoint))
	sb.WriteString(fmt.Sprintf("  %-22s: %d\n", "Max Body Bytes", c.MaxBodyBytes))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Shutdown Timeout", c.ShutdownTimeout))
	sb.WriteString(c.Store.String())
	return sb.String()
}
