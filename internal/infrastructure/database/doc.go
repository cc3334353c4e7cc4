// Package database opens the SQLite file that records apply history and
// keeps its schema current.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// (with an optional matching .down.sql). They are applied oldest first, each
// in its own transaction, and recorded in schema_migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.HistoryPath(), WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
