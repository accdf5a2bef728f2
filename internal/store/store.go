// Package store holds the SQLite queries for items, processes, verification
// questions, users and settings. Every function takes a dbx.DBTX so it can run
// on the database directly or inside a transaction.
package store

import "errors"

// ErrConflict is returned by updates whose version token no longer matches
// the stored row.
var ErrConflict = errors.New("version conflict")
