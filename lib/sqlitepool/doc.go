// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen SQLite pools with the pragmas
// Shift's on-disk state expects: WAL journaling, NORMAL sync, and a
// busy timeout so the journal writer and control-socket readers never
// fail with SQLITE_BUSY under normal contention.
//
// Each goroutine takes its own connection:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
