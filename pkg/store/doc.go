// Package store provides versioned persistence for the router's live
// configuration documents.
//
// # Overview
//
// A configuration document is an opaque JSON-like map identified by a key
// (for example "model-router-config"). The package defines two contracts:
//
//   - Manager: plain CRUD over named documents with no versioning guarantees
//   - VersionManager: version-aware lifecycle (initialize, update, rollback,
//     history, cleanup) layered on top of Manager
//
// and ships four backends selected through Kind:
//
//   - File: active copy, immutable per-version snapshots, metadata and
//     history files under a root directory
//   - Table: one SQL row per version with an is_latest flag (SQLite)
//   - Bolt: a bbolt database with one bucket per key
//   - Memory: a mutex-guarded map without history (tests, ephemeral use)
//
// # Usage
//
//	vm, err := store.NewFileStore(store.FileOptions{Root: "./config"})
//	if err != nil {
//	    return err
//	}
//	defer vm.Close()
//
//	res, _ := vm.InitializeConfig(ctx, "model-router-config", doc, "bootstrap")
//	v, err := vm.UpdateConfigVersion(ctx, "model-router-config", next, "raise limits", "alice")
//	old, _ := vm.GetConfigByVersion(ctx, "model-router-config", res.Version)
//	v, err = vm.RollbackToVersion(ctx, "model-router-config", 1, "bad deploy", "alice")
//
// # Versioning Rules
//
// Versions start at 1 and grow by exactly one on every content-changing
// update and on every rollback. An update whose document is semantically
// equal to the current version is a no-op that returns the current version.
// A rollback never rewrites history: it appends a new version whose content
// equals the target.
//
// # Thread Safety
//
// All backends are safe for concurrent use. Writers for the same key are
// serialised by a per-key lock; readers take the per-key read lock and never
// wait on writers of unrelated keys.
package store
