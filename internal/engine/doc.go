// Package engine reconciles an action graph against a deployment journal
// and executes what is left.
//
// ARCHITECTURE:
//
//	graph + journal entries --Reconcile--> Plan (skip | retry | execute)
//	Plan --Run--> coordinator --job--> worker pool --Execute--> target
//	                  ^                       |
//	                  +----- outcomeQueue ----+
//
// Coordinator:
// One goroutine (the caller of Run) owns all action state: which actions
// are ready, running, succeeded, failed or held. Nothing else mutates it.
// Ready actions are dispatched in graph order, up to the concurrency limit.
//
// Workers:
// Each dispatch runs on an errgroup goroutine that
//  1. writes the started entry (attempt = previous + 1),
//  2. calls the executor with the resolved inputs,
//  3. writes the success or failed entry,
//  4. reports the outcome to the coordinator.
//
// Step 1 is durable before step 2 begins. An outcome is only reported after
// step 3 committed, so the coordinator never acts on an unrecorded result.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every journal write is stamped by Clock.Next(), seeded from the journal's
// MaxSeq. Wall-clock time is never used for ordering.
//
// In-flight work is never abandoned:
// Journal writes and executor calls run under context.WithoutCancel.
// Cancelling Run stops new dispatches only.
//
// Failure isolation:
// A failed action holds its transitive dependents for the rest of the run.
// Independent branches keep running.
package engine
