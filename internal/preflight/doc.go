// Package preflight provides system validation checks run before indexing
// starts: enough disk space to hold the database and vector indexes,
// enough memory and file descriptors for the discovery walk and the
// watcher, write access to the database directory, and reachability of
// the configured embedding provider (a warning, not a failure: the
// embedder check is never required).
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/project", provider)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
