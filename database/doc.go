// Package database is the track record store: a GORM connection wrapper with
// pooling, retrying connect, a zerolog-backed query logger, embedded SQL
// migrations and TrackStore, which answers ownership, grant and reference
// questions for the access gate and the lifecycle processor.
//
//	comp := database.NewComponent(cfg, log)
//	_ = comp.Start(ctx)
//	store := database.NewTrackStore(comp.DB())
//	rec, found, err := store.GetOwner(ctx, "track-1")
//
// SQLite is the only bundled driver (gorm.io/driver/sqlite). Other drivers can
// be plugged in through NewWithContext with any gorm.Dialector.
package database
