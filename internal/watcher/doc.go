// Package watcher provides recursive file system watching with debouncing
// and filter-aware directory registration.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify for efficient event-based watching
//   - Fallback: Polling for environments where fsnotify fails (network mounts, Docker volumes)
//
// Events are debounced to coalesce rapid changes from IDEs and git operations.
// Changes to ignore rule files are reported as OpIgnoreChange so the caller
// can re-evaluate what is indexed.
//
// Usage:
//
//	w, err := watcher.New(watcher.Options{Filter: chain})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, []string{"/path/to/project"}); err != nil {
//	    return err
//	}
//
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        // event.Path is absolute
//	    }
//	}
package watcher
