// Package storage is the relational access layer.
//
// It covers:
//   - Person search over an externally owned table (read-only)
//   - Bot control tables: authorized users (primary database) and the
//     search audit log (audit database)
//
// Three SQL dialects are supported: sqlserver, postgres and sqlite.
package storage
