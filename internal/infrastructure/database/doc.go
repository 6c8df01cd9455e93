// Package database provides SQLite connectivity for the beadle service.
//
// This package manages:
//   - Opening the database file with WAL mode, foreign keys and a busy timeout
//   - Versioned, embedded schema migrations tracked in schema_migrations
//   - A transaction helper used by every repository that writes more than one row
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive. New columns must be NULLABLE or have DEFAULT
// values, and each YYYYMMDD_HHMMSS_name.up.sql has a matching .down.sql.
package database
