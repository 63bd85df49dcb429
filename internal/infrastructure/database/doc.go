// Package database provides the SQLite connection and schema
// migrations backing the HomeLink device store.
//
// The store is a single-file SQLite database opened in WAL mode so
// status reads proceed while command writes are in flight. Migrations
// are plain SQL files embedded into the binary by the migrations
// package and applied at startup:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS()); err != nil {
//	    return err
//	}
//
// Schema changes are additive so rollbacks stay safe: new columns are
// nullable or defaulted, and nothing is dropped or renamed once
// released. All queries use parameterised statements.
package database
