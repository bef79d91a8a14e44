// Package engine implements the action execution bus.
//
// The bus runs small units of work (actions), resolves their declared
// dependencies and event subscriptions, lets them cooperatively suspend
// and resume, and rolls back completed work when a later failure
// invalidates it.
//
// ARCHITECTURE:
//
// Single-Writer Scheduling Loop:
// Bus.Run processes one task at a time on the calling goroutine. Handlers
// run as goroutine-backed coroutines driven in lock-step with the loop,
// so exactly one side executes at any time. This ensures:
//   - Deterministic execution order for a given definition
//   - Reproducible logs and traces
//   - No locks on registry, queue, results or logs
//
// Task Flow:
//  1. Builder collects events, actions, run-now directives,
//     subscriptions, triggers and hooks; Build validates them
//  2. Run requests the directives; actions whose required actions are not
//     resolved are held and their requirements requested
//  3. The loop dequeues one task and starts or resumes its handler
//  4. A handler that suspends goes back to the tail of the queue with the
//     resume value chosen by the MainSuspend hooks
//  5. A handler that returns has its result validated, stored and logged;
//     held dependents, subscriptions, triggers and alternates fan out
//  6. When the queue drains, MainAfter hooks may add work; otherwise the
//     run terminates
//
// Any unrecovered error aborts suspended handlers and rolls back every
// completed action newest first before Run returns the error.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Trace entries are stamped by Clock.Next(), never wall-clock time.
//
// Circular-Call Protection:
// The same (action, status) completing twice in a run is a circular call
// unless the action's retry budget covers it (see callGuard). With
// Config.AllowCircularCall the repeat is tolerated and every log becomes
// a ring of Config.LogMaxSize entries.
//
// Hook Discipline:
// Hooks receive a StateService and may mutate registry, subscriptions
// and queue; mutations apply from the next iteration. Hooks must not
// call Run (ErrReentrantRun).
package engine
