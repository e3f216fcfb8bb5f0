// routerstore manages the versioned configuration store of the model router.
//
// It reads and writes configuration versions, rolls back, prunes old
// versions, consolidates legacy {prefix}@{N}.json snapshots, and can run as a
// long-lived process that serves metrics, prunes on a schedule and merges
// legacy files as they appear.
//
// Usage:
//
//	# Show the current configuration
//	routerstore get model-router-config
//
//	# Store a new version from a file
//	routerstore put model-router-config --file routes.yaml --description "add embed pool"
//
//	# Inspect and roll back
//	routerstore history model-router-config --limit 5
//	routerstore rollback model-router-config 3
//
//	# Preview, then run, a legacy merge
//	routerstore merge --preview
//	routerstore merge
//
//	# Run the background services
//	routerstore serve --config /etc/routerstore/config.yaml
package main

func main() {
	Execute()
}
