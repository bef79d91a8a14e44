package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_Unbounded(t *testing.T) {
	r := newRing(0)
	for range 500 {
		r.Push("x")
	}
	assert.Equal(t, 500, r.Len())
}

func TestRing_EvictsOldest(t *testing.T) {
	r := newRing(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		r.Push(s)
	}

	assert.Equal(t, []string{"c", "d", "e"}, r.Items())
	assert.False(t, r.Contains("a"), "evicted entries are forgotten")
}

func TestRing_ItemsIsCopy(t *testing.T) {
	r := newRing(0)
	r.Push("a")

	items := r.Items()
	items[0] = "mutated"
	assert.Equal(t, []string{"a"}, r.Items())
}

func TestExecutionLog_PolicySwitch(t *testing.T) {
	tests := []struct {
		name     string
		allow    bool
		size     int
		wantSize int
	}{
		{"circular rejected is unbounded", false, 5, 0},
		{"circular allowed uses size", true, 5, 5},
		{"circular allowed defaults size", true, 0, DefaultLogMaxSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newExecutionLog(tt.allow, tt.size)
			for _, r := range []*ring{l.action, l.main, l.repeated, l.event, l.retries} {
				assert.Equal(t, tt.wantSize, r.max)
			}
		})
	}
}

func TestExecutionLog_SnapshotAndReset(t *testing.T) {
	l := newExecutionLog(false, 0)
	l.action.Push("a")
	l.main.Push("a.Success")
	l.event.Push("tick")

	s := l.Snapshot()
	assert.Equal(t, []string{"a"}, s.ActionLog)
	assert.Equal(t, []string{"a.Success"}, s.MainLog)
	assert.Equal(t, []string{"tick"}, s.EventLog)
	assert.Empty(t, s.RepeatedLog)

	l.Reset()
	assert.Empty(t, l.Snapshot().ActionLog)
}
