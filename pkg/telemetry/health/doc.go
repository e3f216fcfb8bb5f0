// Package health serves liveness and readiness endpoints for routerstore serve.
//
// Readiness runs every registered check concurrently with a per-check
// timeout. serve registers a "store" check that lists keys from the open
// backend, and a "database" check that pings the SQLite handle when the
// table backend is in use.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("store", func(ctx context.Context) error {
//		_, err := manager.GetAllKeys(ctx)
//		return err
//	})
//	health.Register(mux, checker, Version, GitCommit, BuildDate)
//
// Endpoints:
//
//   - /health: 200 while the process runs
//   - /ready: 200 when all checks pass, 503 otherwise
//   - /version: build information
package health
