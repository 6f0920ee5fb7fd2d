// Package freshness decides whether a project's declared dependencies are
// up to date.
//
// A [Checker] asks a [resolver.Resolver] which dependencies are outdated,
// then filters the answer through a [caveat.Table]. What survives is the
// [Residual]: outdated dependencies nobody has acknowledged. A non-empty
// residual for either dependency group fails the check.
//
//	checker := freshness.NewChecker(res, caveats, logger)
//	report, err := checker.CheckAll(ctx, m, false)
//	if err != nil {
//	    return err // resolver failure
//	}
//	if report.Failed() {
//	    return report.Err()
//	}
//
// Caveats are trusted only while they still describe the registry. A
// caveat whose recorded range and stable version both differ from what the
// resolver reports is stale: the checker logs a warning and keeps the
// dependency in the residual.
//
// The checker holds no mutable state. Concurrent checks of the same or
// different manifests are safe.
package freshness
