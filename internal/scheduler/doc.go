// Package scheduler runs resolved callbacks in dependency order.
//
// A Scheduler owns the live layout: the Tree, its path Index and the queues
// of requested and executing callbacks. All of it is touched only by the Run
// loop goroutine, so no locks guard the layout.
//
// Single-writer event loop:
//
// Every outside stimulus reaches the loop as an event on a FIFO queue:
//   - SetProps: a user edit of one component
//   - Hydrate: the initial calls of the layout, accepted once
//   - MoveHistory: undo, redo or revert of a user edit
//   - a completion: an executor result coming back from its goroutine
//
// WaitIdle and Snapshot are events too, which is how outside goroutines
// observe the loop's state without racing it.
//
// Event processing flow:
//  1. The event is dequeued and applied. Applying props publishes an
//     UpdateProps action, journals it and requests every callback reading
//     the changed props.
//  2. The loop pumps: requests whose outputs left the layout are pruned,
//     requests whose inputs are about to change (an output of an active
//     callback, or of anything downstream of one) are held back, and the
//     rest start in priority order.
//  3. Each started callback is prepared from the layout and handed to the
//     Executor on its own goroutine. Its result returns as a completion
//     stamped with the execution token, so a superseded result is dropped.
//  4. When nothing is requested or executing, idle waiters are released.
//
// Concurrency:
//
// Callbacks whose concrete outputs are disjoint run at the same time, up to
// WithMaxConcurrent. Two callbacks writing the same output never overlap;
// the later one waits for the earlier to complete. If every request is
// blocked by another and nothing executes, the requests form a circular
// wait that only the live layout shows; the first by priority is admitted
// and a warning is logged.
//
// Execution groups:
//
// Each edit, history move and hydration opens an execution group named by
// the GroupGenerator. Callbacks requested as a consequence join the group
// of the update that triggered them. A QuotaEnforcer per group bounds the
// callbacks it may start (WithMaxSteps), which stops runaway cycles that
// validation cannot see. Quotas are forgotten whenever the loop goes idle.
//
// Ordering:
//
// Every journal row and execution token is stamped from one logical Clock.
// Within a group the journal therefore reads in apply order. Replaying the
// same events over the same layout yields the same journal when at most one
// callback executes at a time and groups come from a SequenceGenerator.
package scheduler
