// Package cmd implements the command-line interface of sqkv. It opens a local
// database file and exposes the store operations as subcommands.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (get, set, rename, info, perf, etc.)
//   - serve: Command for serving a database file over HTTP
//   - util: Shared utilities for flags, configuration and output (internal use)
//
// Every flag can also be set with an environment variable prefixed with SQKV_
// (e.g. SQKV_FILE, SQKV_COMPRESSION). .env and .env.local are loaded if present.
//
// See sqkv -help for a list of all commands.
package cmd
