// Package database provides SQLite connectivity for the Gray Logic Media
// catalog.
//
// This package manages:
//   - Database connection with WAL mode so browse requests can read while
//     the catalog is being updated
//   - Schema migrations embedded in the binary
//   - The storage cleanup hook run once during shutdown
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Shutdown:
//
// A WAL-mode database reports ThreadCleanupRequired. The device
// controller then calls ThreadCleanup, which checkpoints the write-ahead
// log into the main file. The call is idempotent.
//
// Migrations are forward only and additive: new columns must be NULLABLE
// or carry a DEFAULT. The migrations package registers the embedded
// *.up.sql files with RegisterMigrations.
package database
