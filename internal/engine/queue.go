package engine

// task is one queued execution of an action.
//
// A task is created when an action is requested and lives until its
// handler returns. While suspended it sits in the queue with co set and
// resume holding the value to deliver when it is dequeued again.
type task struct {
	action   *Action
	event    *Event
	argument any
	actx     *ActionContext
	co       *coroutine
	resume   any
	suspends int
}

// started reports whether the handler has begun executing.
func (t *task) started() bool {
	return t.co != nil
}

// taskQueue is the FIFO ready queue.
//
// The queue is unbounded: subscriptions, triggers and hooks may enqueue
// arbitrarily many tasks. It is touched only by the scheduling loop and
// the hooks it calls synchronously, so it carries no lock.
type taskQueue struct {
	tasks []*task
}

// newTaskQueue creates an empty queue.
func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: make([]*task, 0, 64),
	}
}

// Push adds a task to the back of the queue.
func (q *taskQueue) Push(t *task) {
	q.tasks = append(q.tasks, t)
}

// Pop removes and returns the front task.
// Returns (nil, false) if the queue is empty.
func (q *taskQueue) Pop() (*task, bool) {
	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]

	// CRITICAL: nil out the slot so the backing array does not keep the
	// task (and its coroutine) reachable after it leaves the queue.
	q.tasks[0] = nil

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	return len(q.tasks)
}

// IsEmpty reports whether no task is queued.
func (q *taskQueue) IsEmpty() bool {
	return len(q.tasks) == 0
}

// Contains reports whether a task for actionID is queued.
func (q *taskQueue) Contains(actionID string) bool {
	for _, t := range q.tasks {
		if t.action.ID == actionID {
			return true
		}
	}
	return false
}

// RemoveUnstarted drops queued tasks for actionID whose handler has not
// begun. Suspended tasks are kept: they finish on their own.
// Returns the number of tasks removed.
func (q *taskQueue) RemoveUnstarted(actionID string) int {
	kept := q.tasks[:0]
	removed := 0
	for _, t := range q.tasks {
		if t.action.ID == actionID && !t.started() {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	clear(q.tasks[len(kept):])
	q.tasks = kept
	return removed
}

// Drain empties the queue and returns what was in it.
func (q *taskQueue) Drain() []*task {
	out := q.tasks
	q.tasks = make([]*task, 0, 64)
	return out
}

// heldSet keeps tasks whose required actions are not resolved yet, in
// request order.
type heldSet struct {
	tasks []*task
}

func (h *heldSet) Add(t *task) {
	h.tasks = append(h.tasks, t)
}

func (h *heldSet) Contains(actionID string) bool {
	for _, t := range h.tasks {
		if t.action.ID == actionID {
			return true
		}
	}
	return false
}

// Release removes and returns, in request order, every held task for
// which ready reports true.
func (h *heldSet) Release(ready func(*task) bool) []*task {
	var out []*task
	kept := h.tasks[:0]
	for _, t := range h.tasks {
		if ready(t) {
			out = append(out, t)
			continue
		}
		kept = append(kept, t)
	}
	clear(h.tasks[len(kept):])
	h.tasks = kept
	return out
}

// Remove drops the held task for actionID, if any.
func (h *heldSet) Remove(actionID string) bool {
	n := len(h.tasks)
	h.Release(func(t *task) bool { return t.action.ID == actionID })
	return len(h.tasks) != n
}

func (h *heldSet) Len() int {
	return len(h.tasks)
}

// IDs returns the held action ids in request order.
func (h *heldSet) IDs() []string {
	ids := make([]string, len(h.tasks))
	for i, t := range h.tasks {
		ids[i] = t.action.ID
	}
	return ids
}

func (h *heldSet) Reset() {
	h.tasks = nil
}
