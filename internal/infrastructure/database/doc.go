// Package database provides SQLite connectivity for the link-event journal.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Embedded, forward-only schema migrations
//   - Connection lifecycle and health checks
//
// The journal is optional; nothing here runs unless journal.enabled is set.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
