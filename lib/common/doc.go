// Package common holds the types shared by all sqkv packages: the store
// configuration, the structured error type with its return codes and the
// named loggers.
//
// Errors:
//
//	Every error returned by the library is an *Error carrying a RetCode. The
//	code is the stable part of the error and can be tested with errors.Is
//	against the Err* sentinels (errors.Is(err, common.ErrClosed)) or read with
//	CodeOf. Causes from the codec libraries or the SQLite driver stay reachable
//	through errors.Unwrap.
//
// Logging:
//
//	CreateLogger returns a logrus entry tagged with the package name. All entries
//	share one root logger whose level is set once by InitLoggers.
package common
