// Package merge consolidates legacy configuration snapshots into the
// versioned store.
//
// Older router deployments wrote one file per version, named
// {prefix}@{N}.json, next to the active configuration. Service folds those
// files, oldest first, into a single document and stores it as version 1 of
// the canonical key, replacing any history the key had. Top-level fields
// take the value of the newest file. Service types under "services" are
// unioned, and their instance lists are merged by name@baseUrl so each
// endpoint appears once with its newest settings.
//
// With backups on, the canonical key's stored versions, metadata and
// history are copied into a backup_{millis} directory before the reset, and
// the merged source files are moved there afterwards. With backups off the
// source files are deleted. Files that could not be read are reported and
// left where they are.
//
// MergeVersions applies the same fold to the canonical key's own stored
// versions and appends the result as a new version.
//
// Each run lists the values a later source overrode as conflicts. The
// _metadata block and instance health fields are dropped before merging and
// never conflict.
//
// Watcher runs a callback when new legacy files appear, so a router that
// still writes the old format can be merged continuously:
//
//	svc := merge.NewService(cfg, vs, applier, logger, collector)
//	w, _ := merge.NewWatcher(merge.WatcherConfig{Dir: cfg.Dir}, logger)
//	go w.Watch(ctx, func(ctx context.Context) error {
//	    if res := svc.Merge(ctx); !res.Success {
//	        return errors.New(res.Message)
//	    }
//	    return nil
//	})
package merge
