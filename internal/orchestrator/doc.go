// Package orchestrator runs search phases and merges their results into sessions.
//
// Quick, Deep and Files run a single step of a progressive search. Comprehensive
// evaluates an ordered list of Phase descriptors under one time budget and
// returns a Report with a tagged PhaseResult per phase:
//
//	report, err := o.Comprehensive(ctx, orchestrator.Request{
//	    Query:        "memory crisis",
//	    MaxTime:      8 * time.Second,
//	    IncludeFiles: true,
//	})
//
// Budget checks happen between phases. A phase whose deadline fraction of the
// budget has passed is skipped, and each phase context is bounded by the smaller
// of its own timeout and the remaining budget. The keyword phase always runs.
package orchestrator
