package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/actionbus/internal/ir"
)

// RunState is the lifecycle state of a bus.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateDraining
	StateRollingBack
	StateTerminated
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateRollingBack:
		return "rolling_back"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// Bus is the action execution bus.
//
// All bus state is owned by the goroutine calling Run. Handlers run on
// coroutine goroutines but strictly alternate with the loop (see
// coroutine), and hooks run synchronously on the loop, so nothing here is
// locked. A Bus must not be used from several goroutines at once.
type Bus struct {
	cfg     Config
	logger  *slog.Logger
	clock   *Clock
	runIDs  RunIDGenerator
	checker ContractChecker
	metrics *Metrics

	registry *registry
	subs     *subscriptionTable
	hooks    hookPipeline
	queue    *taskQueue
	held     heldSet
	results  *resultStore
	log      *executionLog
	guard    *callGuard
	trace    []ir.TraceEntry
	stateCtx *StateContext
	svc      *StateService

	directives  []string
	shared      map[string]any
	handlerSubs map[string]HandlerFunc
	resultSubs  map[string]any

	outstanding map[string]int       // queued or suspended tasks per action
	completed   map[string]*Action   // action definition at its last completion
	arguments   map[string]any       // argument of the last completion
	resolved    map[string]bool      // result stored and alternates settled
	effective   map[string]ir.Result // successful alternate result seen by dependents
	alternates  map[string][]string  // alternates still to try per failed action
	alternateOf map[string]string    // running alternate -> failed action

	state   RunState
	runID   string
	runCtx  context.Context
	running bool
}

func newBus(cfg Config, opts ...Option) *Bus {
	b := &Bus{
		cfg:      cfg,
		logger:   slog.Default(),
		clock:    NewClock(),
		runIDs:   UUIDv7Generator{},
		checker:  NewTypeChecker(),
		registry: newRegistry(),
		subs:     newSubscriptionTable(),
		queue:    newTaskQueue(),
		results:  newResultStore(),
		log:      newExecutionLog(cfg.AllowCircularCall, cfg.LogMaxSize),
		stateCtx: newStateContext(),
		shared:   make(map[string]any),
		runCtx:   context.Background(),
	}
	b.guard = newCallGuard(b.log)
	b.svc = &StateService{bus: b}
	b.resetRunState()

	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = DefaultMetrics()
	}
	return b
}

func (b *Bus) resetRunState() {
	b.outstanding = make(map[string]int)
	b.completed = make(map[string]*Action)
	b.arguments = make(map[string]any)
	b.resolved = make(map[string]bool)
	b.effective = make(map[string]ir.Result)
	b.alternates = make(map[string][]string)
	b.alternateOf = make(map[string]string)
}

// Run executes the bus until the queue drains and the MainAfter hooks add
// no more work.
//
// Run seeds the queue from the run-now directives, then loops: MainCyclic
// hooks, dequeue one task, advance its handler by one step (start or
// resume), and on completion validate, store, log and fan out to held
// dependents, subscriptions, triggers and alternates.
//
// On any unrecovered error the bus aborts suspended handlers, rolls back
// every completed action newest first, and returns the error (joined with
// the rollback error, if rollback also failed).
//
// Run is not idempotent: results of a previous run stay until Reset, so a
// second Run without Reset skips every non-repeatable action that already
// completed.
func (b *Bus) Run(ctx context.Context) (err error) {
	if b.running {
		return ErrReentrantRun
	}
	b.running = true
	defer func() { b.running = false }()

	b.runID = b.runIDs.Generate()
	ctx, span := startRunSpan(ctx, b.runID)
	b.runCtx = ctx
	start := time.Now()
	defer func() {
		b.metrics.runFinished(time.Since(start).Seconds(), err)
		endSpan(span, err)
	}()

	b.logger.Info("starting run",
		"run_id", b.runID,
		"actions", len(b.registry.order),
		"directives", len(b.directives),
		"queued", b.queue.Len(),
	)

	b.state = StateRunning
	if err := b.loop(ctx); err != nil {
		return b.fail(ctx, err)
	}

	b.state = StateTerminated
	b.logger.Info("run completed",
		"run_id", b.runID,
		"completed", b.log.action.Len(),
		"events", b.log.event.Len(),
	)
	return nil
}

func (b *Bus) loop(ctx context.Context) error {
	for _, id := range b.directives {
		if err := b.requestAction(id, nil); err != nil {
			return err
		}
	}

	if err := b.hooks.runMain(StageMainBegin, b.svc); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return &RuntimeError{Code: ErrCodeRunCancelled, Message: "run context done", Err: err}
		}

		if err := b.hooks.runMain(StageMainCyclic, b.svc); err != nil {
			return err
		}

		b.metrics.depth(b.queue.Len())
		if b.queue.IsEmpty() {
			b.state = StateDraining
			if err := b.hooks.runMain(StageMainAfter, b.svc); err != nil {
				return err
			}
			if b.queue.IsEmpty() {
				break
			}
			b.state = StateRunning
			continue
		}

		t, _ := b.queue.Pop()
		if err := b.step(ctx, t); err != nil {
			return err
		}
	}

	if b.held.Len() > 0 {
		b.logger.Warn("run finished with unsatisfied actions",
			"run_id", b.runID,
			"held", b.held.IDs(),
		)
		b.held.Reset()
	}
	return nil
}

// fail aborts outstanding handlers and rolls back.
func (b *Bus) fail(ctx context.Context, cause error) error {
	b.state = StateRollingBack
	b.logger.Error("run failed, rolling back",
		"run_id", b.runID,
		"error", cause,
	)

	b.abortTasks()

	err := cause
	if rbErr := b.rollback(ctx, 0, rollbackFailure); rbErr != nil {
		b.logger.Error("rollback failed", "run_id", b.runID, "error", rbErr)
		err = errors.Join(cause, rbErr)
	}
	b.state = StateFailed
	return err
}

// abortTasks drops every queued and held task, unwinding suspended
// handlers.
func (b *Bus) abortTasks() {
	for _, t := range b.queue.Drain() {
		if t.co != nil {
			t.co.abort()
		}
	}
	b.held.Reset()
	clear(b.outstanding)
}

// step advances one task by one handler step. The span covers only this
// step; the handler keeps the run context, which outlives its suspensions.
func (b *Bus) step(ctx context.Context, t *task) error {
	_, span := startActionSpan(ctx, t.action.ID, t.started())
	err := b.stepTask(ctx, t)
	if err != nil && t.co != nil {
		t.co.abort()
	}
	endSpan(span, err)
	return err
}

func (b *Bus) stepTask(ctx context.Context, t *task) error {
	var st step

	if !t.started() {
		if err := b.prepare(ctx, t); err != nil {
			if IsCode(err, ErrCodeArgumentNotResolved) {
				b.logger.Warn("argument not resolved",
					"run_id", b.runID,
					"action", t.action.ID,
					"error", err,
				)
				return b.complete(t, ir.Result{Status: ir.StatusError})
			}
			return err
		}

		before := &ActionStateService{StateService: b.svc, action: t.action, argument: t.argument}
		if err := b.hooks.runAction(StageActionBefore, before); err != nil {
			return err
		}

		handler, err := b.resolveHandler(t)
		if err != nil {
			return err
		}

		b.record(ir.TraceDispatch, t.action.ID, "", "")
		b.logger.Debug("dispatching action", "run_id", b.runID, "action", t.action.ID)

		t.co = newCoroutine()
		t.actx.co = t.co
		actx := t.actx
		st = t.co.start(func() (any, error) { return handler(actx) })
	} else {
		resume := &ResumeService{StateService: b.svc, actionID: t.action.ID, value: t.resume}
		value, err := b.hooks.runResume(resume)
		if err != nil {
			return err
		}
		t.resume = nil

		b.record(ir.TraceResume, t.action.ID, "", "")
		b.logger.Debug("resuming action", "run_id", b.runID, "action", t.action.ID)
		st = t.co.resume(value)
	}

	if st.yielded {
		return b.suspend(t, st.value)
	}

	if st.err != nil {
		if _, ok := asErrorResult(st.err); ok {
			b.logger.Debug("action returned error result",
				"run_id", b.runID,
				"action", t.action.ID,
				"error", st.err,
			)
			return b.complete(t, ir.Result{Status: ir.StatusError})
		}
		return &RuntimeError{
			Code:     ErrCodeHandlerFailed,
			ActionID: t.action.ID,
			Message:  "handler failed",
			Err:      st.err,
		}
	}

	result, err := b.interpret(t.action, st.value)
	if err != nil {
		return err
	}
	return b.complete(t, result)
}

// prepare builds the action container, the view of required results and
// the argument.
func (b *Bus) prepare(ctx context.Context, t *task) error {
	a := t.action

	results := make(map[string]ir.Result, len(a.Required))
	for _, req := range a.Required {
		r, ok := b.effectiveResult(req)
		if !ok {
			continue
		}
		if data, ok := b.resultSubs[req]; ok {
			r.Data = data
		}
		results[req] = r
	}

	t.actx = &ActionContext{
		ctx:       ctx,
		action:    a,
		results:   results,
		event:     t.event,
		container: b.newContainer(a),
	}

	arg, err := b.resolveArgument(t)
	if err != nil {
		return err
	}
	t.argument = arg
	t.actx.argument = arg
	return nil
}

// resolveArgument picks the argument: the factory's value, else the first
// required result (or event payload) compatible with Action.Argument.
func (b *Bus) resolveArgument(t *task) (any, error) {
	a := t.action

	if a.ArgumentFactory != nil {
		v, err := a.ArgumentFactory(t.actx)
		if err != nil {
			return nil, &RuntimeError{
				Code:     ErrCodeArgumentNotResolved,
				ActionID: a.ID,
				Message:  "argument factory failed",
				Err:      err,
			}
		}
		return v, nil
	}

	if a.Argument == "" {
		return nil, nil
	}

	for _, req := range a.Required {
		if r, ok := t.actx.results[req]; ok && b.checker.Compatible(a.Argument, r.Data) {
			return r.Data, nil
		}
	}
	if t.event != nil && b.checker.Compatible(a.Argument, t.event.Data) {
		return t.event.Data, nil
	}

	return nil, &RuntimeError{
		Code:     ErrCodeArgumentNotResolved,
		ActionID: a.ID,
		Message:  fmt.Sprintf("no required result satisfies argument contract %s", a.Argument),
	}
}

func (b *Bus) newContainer(a *Action) *Container {
	c := NewContainer(b.cfg.Bind, b.cfg.Providers)
	c.Bind(a.Bind)
	c.AddProviders(a.Providers)
	for name, v := range b.shared {
		c.Set(name, v)
	}
	return c
}

func (b *Bus) resolveHandler(t *task) (HandlerFunc, error) {
	a := t.action
	if h, ok := b.handlerSubs[a.ID]; ok {
		return h, nil
	}
	if a.Handler != nil {
		return a.Handler, nil
	}

	v, err := t.actx.container.Get(a.HandlerType)
	if err != nil {
		return nil, &RuntimeError{
			Code:     ErrCodeHandlerFailed,
			ActionID: a.ID,
			Message:  "resolve handler",
			Err:      err,
		}
	}
	switch h := v.(type) {
	case HandlerFunc:
		return h, nil
	case func(*ActionContext) (any, error):
		return h, nil
	case Handler:
		return h.Handle, nil
	}
	return nil, &RuntimeError{
		Code:     ErrCodeHandlerFailed,
		ActionID: a.ID,
		Message:  fmt.Sprintf("handler type %q resolved to %T, which is not a handler", a.HandlerType, v),
	}
}

// suspend picks the resume value for a yielded handler and re-queues it.
func (b *Bus) suspend(t *task, value any) error {
	b.record(ir.TraceSuspend, t.action.ID, "", "")
	b.metrics.suspended()

	sp := Suspension{ActionID: t.action.ID, Value: value}
	resume := value
	h, ok, err := b.hooks.suspendHandler(sp)
	if err != nil {
		return err
	}
	if ok {
		svc := &SuspendService{StateService: b.svc, suspension: sp, container: t.actx.container}
		var v any
		err = guardHook(StageMainSuspend, t.action.ID, func() error {
			var err error
			v, err = h.Handle(svc)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s hook for %s: %w", StageMainSuspend, t.action.ID, err)
		}
		resume = v
	}

	t.resume = resume
	t.suspends++
	b.queue.Push(t)

	b.logger.Debug("action suspended",
		"run_id", b.runID,
		"action", t.action.ID,
		"suspends", t.suspends,
	)
	return nil
}

// interpret turns a handler return value into a Result and validates it.
func (b *Bus) interpret(a *Action, raw any) (ir.Result, error) {
	var res ir.Result
	switch v := raw.(type) {
	case ir.Result:
		res = v
	case *ir.Result:
		if v != nil {
			res = *v
		}
	default:
		res = ir.Result{Data: raw}
	}
	if res.Status == "" {
		res.Status = ir.StatusSuccess
	}
	if !res.Status.Valid() {
		return ir.Result{}, &RuntimeError{
			Code:     ErrCodeHandlerFailed,
			ActionID: a.ID,
			Message:  fmt.Sprintf("invalid result status %q", res.Status),
		}
	}
	if isNilData(res.Data) {
		res.Data = nil
	}

	if !b.cfg.EnabledValidation {
		return res, nil
	}
	if err := b.validateResult(a, res); err != nil {
		return ir.Result{}, err
	}
	return res, nil
}

func (b *Bus) validateResult(a *Action, res ir.Result) error {
	invalid := func(code ErrorCode, msg string) error {
		return &RuntimeError{Code: code, ActionID: a.ID, Message: msg}
	}

	if a.Contract == "" {
		if res.Data == nil {
			return nil
		}
		if isObject(res.Data) {
			return invalid(ErrCodeReturnValueExists,
				fmt.Sprintf("action declares no contract but returned %T", res.Data))
		}
		return invalid(ErrCodeReturnValueNotObject,
			fmt.Sprintf("return value must be an object, got %T", res.Data))
	}

	if res.Data == nil {
		if res.Status == ir.StatusSuccess {
			return invalid(ErrCodeDataNotReceived,
				fmt.Sprintf("no data received for contract %s", a.Contract))
		}
		return nil
	}
	if !isObject(res.Data) {
		return invalid(ErrCodeReturnValueNotObject,
			fmt.Sprintf("return value must be an object, got %T", res.Data))
	}
	if !b.checker.Compatible(a.Contract, res.Data) {
		return invalid(ErrCodeIncompatibleContract,
			fmt.Sprintf("%T is not compatible with contract %s", res.Data, a.Contract))
	}
	return nil
}

// complete stores a result and fans out to dependents.
//
// Order: store, log + circular check, settle alternates and release held
// dependents, request subscribed and triggered actions, ActionAfter hooks.
func (b *Bus) complete(t *task, result ir.Result) error {
	a := t.action
	if b.outstanding[a.ID] > 0 {
		b.outstanding[a.ID]--
	}

	b.results.Save(a.ID, result)
	b.completed[a.ID] = a
	b.arguments[a.ID] = t.argument
	b.record(ir.TraceComplete, a.ID, "", result.Status)
	b.metrics.completed(result.Status)

	b.logger.Debug("action completed",
		"run_id", b.runID,
		"action", a.ID,
		"status", result.Status,
	)

	if b.guard.Record(a, result.Status) {
		b.metrics.circular()
		if !b.cfg.AllowCircularCall {
			return errCircularCall(a.ID, ir.LogKey(a.ID, result.Status))
		}
		b.logger.Debug("repeated completion tolerated", "run_id", b.runID, "action", a.ID)
	}

	if err := b.settle(a, result); err != nil {
		return err
	}

	for _, next := range b.subs.Resolve(a.ID, result.Status) {
		if err := b.requestAction(next, nil); err != nil {
			return err
		}
	}

	after := &ActionStateService{
		StateService: b.svc,
		action:       a,
		argument:     t.argument,
		result:       result,
		completed:    true,
	}
	return b.hooks.runAction(StageActionAfter, after)
}

// settle resolves alternates and marks a resolved once nothing is left to
// try for it.
func (b *Bus) settle(a *Action, result ir.Result) error {
	if failedID, ok := b.alternateOf[a.ID]; ok {
		delete(b.alternateOf, a.ID)
		if result.Status == ir.StatusSuccess {
			b.substitute(failedID, a.ID, result)
		} else if err := b.nextAlternate(failedID); err != nil {
			return err
		}
	}

	if result.Status == ir.StatusFail && len(a.Alternates) > 0 {
		if _, pending := b.alternates[a.ID]; !pending {
			b.alternates[a.ID] = slices.Clone(a.Alternates)
			return b.nextAlternate(a.ID)
		}
	}

	b.markResolved(a.ID)
	return nil
}

// nextAlternate requests the next untried alternate of failedID, or marks
// failedID resolved with its own Fail result when none is left.
func (b *Bus) nextAlternate(failedID string) error {
	for len(b.alternates[failedID]) > 0 {
		altID := b.alternates[failedID][0]
		b.alternates[failedID] = b.alternates[failedID][1:]

		alt, ok := b.registry.Get(altID)
		if !ok {
			continue
		}
		if !b.admissible(alt) {
			if r, ok := b.results.Get(altID); ok && r.Status == ir.StatusSuccess {
				b.substitute(failedID, altID, r)
				return nil
			}
			continue
		}

		b.logger.Debug("trying alternate",
			"run_id", b.runID,
			"action", failedID,
			"alternate", altID,
		)
		b.alternateOf[altID] = failedID
		return b.requestAction(altID, nil)
	}

	delete(b.alternates, failedID)
	b.markResolved(failedID)
	return nil
}

func (b *Bus) substitute(failedID, altID string, r ir.Result) {
	b.logger.Debug("alternate succeeded",
		"run_id", b.runID,
		"action", failedID,
		"alternate", altID,
	)
	b.effective[failedID] = r
	delete(b.alternates, failedID)
	b.markResolved(failedID)
}

func (b *Bus) markResolved(id string) {
	b.resolved[id] = true
	for _, t := range b.held.Release(func(t *task) bool { return b.ready(t.action) }) {
		b.enqueue(t)
	}
}

func (b *Bus) effectiveResult(id string) (ir.Result, bool) {
	if r, ok := b.effective[id]; ok {
		return r, true
	}
	return b.results.Get(id)
}

// requestAction enqueues id, or holds it until its required actions are
// resolved and requests those.
func (b *Bus) requestAction(id string, ev *Event) error {
	a, ok := b.registry.Get(id)
	if !ok {
		return errActionNotDefined("", id)
	}
	if !b.admissible(a) {
		b.logger.Debug("request skipped", "run_id", b.runID, "action", id)
		return nil
	}

	t := &task{action: a, event: ev}
	if b.ready(a) {
		b.enqueue(t)
		return nil
	}

	b.held.Add(t)
	b.logger.Debug("action held", "run_id", b.runID, "action", id, "required", a.Required)
	for _, req := range a.Required {
		if b.resolved[req] {
			continue
		}
		if err := b.requestAction(req, nil); err != nil {
			return err
		}
	}
	return nil
}

// admissible applies the enqueue rules: a held action is never requested
// twice; a non-repeatable action runs at most once per run; a locked
// repeatable action is skipped while an instance is outstanding.
func (b *Bus) admissible(a *Action) bool {
	if b.held.Contains(a.ID) {
		return false
	}
	if b.outstanding[a.ID] > 0 && (!a.Repeatable || a.Lock) {
		return false
	}
	if !a.Repeatable && b.results.Exists(a.ID) {
		return false
	}
	return true
}

// ready reports whether every required action is resolved.
func (b *Bus) ready(a *Action) bool {
	for _, req := range a.Required {
		if !b.resolved[req] {
			return false
		}
	}
	return true
}

func (b *Bus) enqueue(t *task) {
	b.outstanding[t.action.ID]++
	b.queue.Push(t)
	b.logger.Debug("action queued", "run_id", b.runID, "action", t.action.ID, "queue_len", b.queue.Len())
}

func (b *Bus) registerAction(a Action) error {
	if err := b.registry.Register(a); err != nil {
		return err
	}
	b.logger.Debug("action registered", "run_id", b.runID, "action", a.ID)
	return nil
}

func (b *Bus) removeAction(id string) {
	removed := b.registry.Remove(id)
	for _, r := range removed {
		b.subs.RemoveByAction(r)
		if n := b.queue.RemoveUnstarted(r); n > 0 {
			b.outstanding[r] -= n
		}
		b.held.Remove(r)
		b.directives = slices.DeleteFunc(b.directives, func(d string) bool { return d == r })
	}
	if len(removed) > 0 {
		b.logger.Debug("actions removed", "run_id", b.runID, "removed", removed)
	}
}

func (b *Bus) addSubscription(s Subscription) error {
	if !b.registry.Exists(s.SubjectID) {
		return errActionNotDefined(s.ActionID, s.SubjectID)
	}
	if !b.registry.Exists(s.ActionID) {
		return errActionNotDefined(s.SubjectID, s.ActionID)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("subscription %s: invalid status %q", s.Key(), s.Status)
	}
	return b.subs.AddSubscription(s)
}

func (b *Bus) addTrigger(t Trigger) error {
	if !b.registry.Exists(t.SubjectID) {
		return errActionNotDefined(t.ActionID, t.SubjectID)
	}
	if !b.registry.Exists(t.ActionID) {
		return errActionNotDefined(t.SubjectID, t.ActionID)
	}
	return b.subs.AddTrigger(t)
}

func (b *Bus) dispatchEvent(e Event) error {
	registered, ok := b.registry.events[e.ID]
	if !ok {
		return errEventNotDefined("", e.ID)
	}
	if e.Data == nil {
		e.Data = registered.Data
	}

	b.log.event.Push(e.ID)
	b.record(ir.TraceEvent, "", e.ID, "")
	b.logger.Debug("event dispatched", "run_id", b.runID, "event", e.ID)

	for _, a := range b.registry.Listeners(e.ID) {
		ev := e
		if err := b.requestAction(a.ID, &ev); err != nil {
			return err
		}
	}
	return nil
}

// record appends to the trace. When the logs are bounded the trace is
// bounded the same way and the oldest entries are dropped.
func (b *Bus) record(kind ir.TraceKind, actionID, eventID string, status ir.Status) {
	b.trace = append(b.trace, ir.TraceEntry{
		Seq:      b.clock.Next(),
		Kind:     kind,
		ActionID: actionID,
		EventID:  eventID,
		Status:   status,
	})
	if n := b.log.size; n > 0 && len(b.trace) > n {
		b.trace = slices.Delete(b.trace, 0, len(b.trace)-n)
	}
}

// actionFor returns the definition of id, preferring the one it completed
// with so removed actions keep their ExternalAccess flag.
func (b *Bus) actionFor(id string) (*Action, bool) {
	if a, ok := b.completed[id]; ok {
		return a, true
	}
	return b.registry.Get(id)
}

// GetResult returns the stored result of an action with ExternalAccess.
func (b *Bus) GetResult(actionID string) (ir.Result, error) {
	a, ok := b.actionFor(actionID)
	if !ok {
		return ir.Result{}, errActionNotDefined("", actionID)
	}
	r, ok := b.results.Get(actionID)
	if !ok || !a.ExternalAccess {
		return ir.Result{}, errResultNotExists(actionID)
	}
	return r, nil
}

// ResultIsExists reports whether GetResult would succeed.
func (b *Bus) ResultIsExists(actionID string) bool {
	_, err := b.GetResult(actionID)
	return err == nil
}

// DispatchEvent requests every action listening on e. Outside Run the
// requested tasks wait in the queue for the next Run.
func (b *Bus) DispatchEvent(e Event) error {
	return b.dispatchEvent(e)
}

// Log returns a snapshot of the execution logs.
func (b *Bus) Log() ir.LogSnapshot {
	return b.log.Snapshot()
}

// Trace returns a copy of the run trace. When circular calls are allowed
// it holds at most the log size of newest entries, like the logs.
func (b *Bus) Trace() []ir.TraceEntry {
	return slices.Clone(b.trace)
}

// State returns the lifecycle state.
func (b *Bus) State() RunState {
	return b.state
}

// RunID returns the id of the current or last run.
func (b *Bus) RunID() string {
	return b.runID
}

// Reset forgets results, logs, trace, queued work and hook context so the
// bus can run again from scratch. Registered actions, subscriptions,
// triggers and hooks are kept. Reset is ignored while running.
func (b *Bus) Reset() {
	if b.running {
		b.logger.Warn("reset ignored while running", "run_id", b.runID)
		return
	}
	b.abortTasks()
	b.results.Reset()
	b.log.Reset()
	b.guard.Clear()
	b.trace = nil
	b.stateCtx = newStateContext()
	b.clock.Rewind()
	b.resetRunState()
	b.state = StateIdle
	b.runID = ""
}
