// Package pipeline runs an import over a lazy item source with per-item
// failure isolation.
//
// Items are processed one at a time on the caller's goroutine. Every item
// that is pulled from the source ends in exactly one of succeeded, skipped
// or failed, and no single item's failure stops the run. The run always
// returns a Report; only an authorization failure or a source that fails
// before producing any item is reported as an error.
//
// Usage:
//
//	report, err := pipeline.Run(ctx, walker.Walk(ctx, rootID), processor, pipeline.Options{
//	    Name:   "media",
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err // nothing was imported
//	}
//	if report.Failed > 0 {
//	    // caller decides whether partial failure is fatal
//	}
package pipeline
