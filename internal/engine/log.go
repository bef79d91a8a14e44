package engine

import (
	"slices"

	"github.com/roach88/actionbus/internal/ir"
)

// DefaultLogMaxSize bounds each log when circular calls are allowed and
// Config.LogMaxSize is unset.
const DefaultLogMaxSize = ir.DefaultLogMaxSize

// ring is an append-only string log. With max > 0 it keeps only the
// newest max entries; with max == 0 it is unbounded.
type ring struct {
	items []string
	max   int
}

func newRing(size int) *ring {
	return &ring{max: size}
}

// Push appends s, evicting the oldest entry when the ring is full.
func (r *ring) Push(s string) {
	if r.max > 0 && len(r.items) >= r.max {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, s)
}

func (r *ring) Contains(s string) bool {
	return slices.Contains(r.items, s)
}

func (r *ring) Len() int {
	return len(r.items)
}

func (r *ring) Items() []string {
	return slices.Clone(r.items)
}

func (r *ring) Reset() {
	r.items = nil
}

// executionLog holds the five run logs.
//
//   - action:   action ids in completion order (drives rollback)
//   - main:     "<id>.<status>" keys of first and budgeted completions
//   - repeated: keys of completions that repeated with no budget left
//   - retries:  same keys as repeated, kept for diagnostics
//   - event:    dispatched event ids
//
// Bounding is a policy switch: every log is a ring of the same size when
// circular calls are allowed, unbounded otherwise.
type executionLog struct {
	action   *ring
	main     *ring
	repeated *ring
	event    *ring
	retries  *ring

	// size is the ring size shared by every log; 0 means unbounded.
	size int
}

// newExecutionLog creates the logs for the given policy.
func newExecutionLog(allowCircularCall bool, logMaxSize int) *executionLog {
	size := 0
	if allowCircularCall {
		size = logMaxSize
		if size <= 0 {
			size = DefaultLogMaxSize
		}
	}
	return &executionLog{
		action:   newRing(size),
		main:     newRing(size),
		repeated: newRing(size),
		event:    newRing(size),
		retries:  newRing(size),
		size:     size,
	}
}

// Snapshot copies the logs.
func (l *executionLog) Snapshot() ir.LogSnapshot {
	return ir.LogSnapshot{
		ActionLog:   l.action.Items(),
		MainLog:     l.main.Items(),
		RepeatedLog: l.repeated.Items(),
		EventLog:    l.event.Items(),
		RetriesLog:  l.retries.Items(),
	}
}

// Reset clears every log.
func (l *executionLog) Reset() {
	l.action.Reset()
	l.main.Reset()
	l.repeated.Reset()
	l.event.Reset()
	l.retries.Reset()
}
