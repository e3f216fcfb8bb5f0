// Package retention enforces a keep-N version policy across every key of a
// store.VersionManager.
//
// # Basic Usage
//
//	pruner := retention.NewPruner(vs, &retention.Config{
//	    KeepVersions: 10,
//	    Schedule:     "0 3 * * *", // Daily at 3 AM
//	}, logger, collector)
//
//	// One-off run
//	report, err := pruner.Prune(ctx)
//
//	// Background runs until ctx is cancelled
//	scheduler := retention.NewScheduler(pruner)
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
//
// Cleanup never removes a key's current version; see
// store.VersionManager.CleanupOldVersions.
package retention
