package engine

import (
	"fmt"
	"runtime/debug"
	"slices"
)

// Stage identifies where in the scheduling loop a hook runs.
type Stage int

const (
	// StageMainBegin runs once, before the first iteration.
	StageMainBegin Stage = iota + 1
	// StageMainCyclic runs at the top of every iteration.
	StageMainCyclic
	// StageActionBefore runs before a handler starts.
	StageActionBefore
	// StageActionAfter runs after a result is stored and subscriptions
	// are resolved.
	StageActionAfter
	// StageMainSuspend runs when a handler suspends and chooses the
	// resume value.
	StageMainSuspend
	// StageMainResume transforms the resume value before delivery.
	StageMainResume
	// StageMainAfter runs whenever the queue drains.
	StageMainAfter
)

func (s Stage) String() string {
	switch s {
	case StageMainBegin:
		return "MainBegin"
	case StageMainCyclic:
		return "MainCyclic"
	case StageActionBefore:
		return "ActionBefore"
	case StageActionAfter:
		return "ActionAfter"
	case StageMainSuspend:
		return "MainSuspend"
	case StageMainResume:
		return "MainResume"
	case StageMainAfter:
		return "MainAfter"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Hook is one of MainBeginHook, MainCyclicHook, ActionBeforeHook,
// ActionAfterHook, MainSuspendHook, MainResumeHook or MainAfterHook.
// The set is closed.
type Hook interface {
	Stage() Stage
	hook()
}

// MainBeginHook runs once before the loop starts.
type MainBeginHook func(s *StateService) error

// MainCyclicHook runs at the top of every loop iteration.
type MainCyclicHook func(s *StateService) error

// MainAfterHook runs when the queue drains. Work it adds keeps the loop
// going.
type MainAfterHook func(s *StateService) error

// MainResumeHook transforms the resume value of a suspended action.
// Hooks chain in registration order.
type MainResumeHook func(s *ResumeService) (any, error)

// ActionBeforeHook runs before the handler of an observed action starts.
// An empty Observed list observes every action.
type ActionBeforeHook struct {
	Observed []string
	Handle   func(s *ActionStateService) error
}

// ActionAfterHook runs after an observed action completes.
// An empty Observed list observes every action.
type ActionAfterHook struct {
	Observed []string
	Handle   func(s *ActionStateService) error
}

// MainSuspendHook produces the resume value for a suspended action.
// Only the first hook whose Resumable accepts the suspension runs; a nil
// Resumable accepts everything.
type MainSuspendHook struct {
	Resumable func(s Suspension) bool
	Handle    func(s *SuspendService) (any, error)
}

// Suspension is the token a handler yields through ActionContext.Suspend.
type Suspension struct {
	ActionID string
	Value    any
}

func (MainBeginHook) Stage() Stage    { return StageMainBegin }
func (MainCyclicHook) Stage() Stage   { return StageMainCyclic }
func (MainAfterHook) Stage() Stage    { return StageMainAfter }
func (MainResumeHook) Stage() Stage   { return StageMainResume }
func (ActionBeforeHook) Stage() Stage { return StageActionBefore }
func (ActionAfterHook) Stage() Stage  { return StageActionAfter }
func (MainSuspendHook) Stage() Stage  { return StageMainSuspend }

func (MainBeginHook) hook()    {}
func (MainCyclicHook) hook()   {}
func (MainAfterHook) hook()    {}
func (MainResumeHook) hook()   {}
func (ActionBeforeHook) hook() {}
func (ActionAfterHook) hook()  {}
func (MainSuspendHook) hook()  {}

// observes reports whether an Observed list covers actionID.
func observes(observed []string, actionID string) bool {
	return len(observed) == 0 || slices.Contains(observed, actionID)
}

// guardHook calls fn and turns a panic into a HANDLER_FAILED error so a
// misbehaving hook fails the run through the normal rollback path.
func guardHook(stage Stage, actionID string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Code:     ErrCodeHandlerFailed,
				ActionID: actionID,
				Message:  stage.String() + " hook panicked",
				Err:      &PanicError{Value: r, Stack: debug.Stack()},
			}
		}
	}()
	return fn()
}

// hookPipeline keeps hooks in registration order.
type hookPipeline struct {
	hooks []Hook
}

func (p *hookPipeline) Add(h Hook) {
	p.hooks = append(p.hooks, h)
}

// Count returns the number of hooks registered for stage.
func (p *hookPipeline) Count(stage Stage) int {
	n := 0
	for _, h := range p.hooks {
		if h.Stage() == stage {
			n++
		}
	}
	return n
}

// runMain runs every MainBegin, MainCyclic or MainAfter hook for stage.
func (p *hookPipeline) runMain(stage Stage, s *StateService) error {
	for _, h := range p.hooks {
		if h.Stage() != stage {
			continue
		}
		var call func(*StateService) error
		switch fn := h.(type) {
		case MainBeginHook:
			call = fn
		case MainCyclicHook:
			call = fn
		case MainAfterHook:
			call = fn
		}
		if call == nil {
			continue
		}
		if err := guardHook(stage, "", func() error { return call(s) }); err != nil {
			return fmt.Errorf("%s hook: %w", stage, err)
		}
	}
	return nil
}

// runAction runs the ActionBefore or ActionAfter hooks observing the
// action behind s.
func (p *hookPipeline) runAction(stage Stage, s *ActionStateService) error {
	for _, h := range p.hooks {
		var observed []string
		var handle func(*ActionStateService) error
		switch ah := h.(type) {
		case ActionBeforeHook:
			if stage != StageActionBefore {
				continue
			}
			observed, handle = ah.Observed, ah.Handle
		case ActionAfterHook:
			if stage != StageActionAfter {
				continue
			}
			observed, handle = ah.Observed, ah.Handle
		default:
			continue
		}
		if handle == nil || !observes(observed, s.ActionID()) {
			continue
		}
		if err := guardHook(stage, s.ActionID(), func() error { return handle(s) }); err != nil {
			return fmt.Errorf("%s hook for %s: %w", stage, s.ActionID(), err)
		}
	}
	return nil
}

// suspendHandler returns the first MainSuspend hook accepting sp.
func (p *hookPipeline) suspendHandler(sp Suspension) (MainSuspendHook, bool, error) {
	for _, h := range p.hooks {
		sh, ok := h.(MainSuspendHook)
		if !ok || sh.Handle == nil {
			continue
		}
		accept := true
		if sh.Resumable != nil {
			err := guardHook(StageMainSuspend, sp.ActionID, func() error {
				accept = sh.Resumable(sp)
				return nil
			})
			if err != nil {
				return MainSuspendHook{}, false, err
			}
		}
		if accept {
			return sh, true, nil
		}
	}
	return MainSuspendHook{}, false, nil
}

// runResume chains the MainResume hooks over the resume value.
func (p *hookPipeline) runResume(s *ResumeService) (any, error) {
	for _, h := range p.hooks {
		fn, ok := h.(MainResumeHook)
		if !ok {
			continue
		}
		var v any
		err := guardHook(StageMainResume, s.actionID, func() error {
			var err error
			v, err = fn(s)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%s hook for %s: %w", StageMainResume, s.actionID, err)
		}
		s.value = v
	}
	return s.value, nil
}
