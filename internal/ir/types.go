package ir

// Contract names the type an action promises to return.
// For Go handlers it is the reflect type string (see engine.ContractOf).
type Contract string

// Result is the stored outcome of a completed action.
// A Result is immutable once stored by the bus.
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// Success creates a Success result carrying data.
func Success(data any) Result {
	return Result{Status: StatusSuccess, Data: data}
}

// Fail creates a Fail result carrying optional data.
func Fail(data any) Result {
	return Result{Status: StatusFail, Data: data}
}

// LogSnapshot is a point-in-time copy of the bus execution logs.
//
// ActionLog holds action ids in completion order. MainLog, RepeatedLog and
// RetriesLog hold "<actionID>.<status>" keys (see LogKey). EventLog holds
// dispatched event ids.
type LogSnapshot struct {
	ActionLog   []string `json:"action_log"`
	MainLog     []string `json:"main_log"`
	RepeatedLog []string `json:"repeated_log"`
	EventLog    []string `json:"event_log"`
	RetriesLog  []string `json:"retries_log"`
}

// TraceKind identifies a step recorded in the run trace.
type TraceKind string

const (
	TraceDispatch TraceKind = "dispatch"
	TraceSuspend  TraceKind = "suspend"
	TraceResume   TraceKind = "resume"
	TraceComplete TraceKind = "complete"
	TraceEvent    TraceKind = "event"
	TraceRollback TraceKind = "rollback"
)

// TraceEntry is one step of a run, stamped with a logical sequence number.
type TraceEntry struct {
	Seq      int64     `json:"seq"`
	Kind     TraceKind `json:"kind"`
	ActionID string    `json:"action_id,omitempty"`
	EventID  string    `json:"event_id,omitempty"`
	Status   Status    `json:"status,omitempty"`
}

// RunStatus is the terminal state of a run as persisted by the store.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is a persisted run: identity, outcome, log and trace.
type RunRecord struct {
	ID       string       `json:"id"`
	Workflow string       `json:"workflow"`
	Status   RunStatus    `json:"status"`
	Error    string       `json:"error,omitempty"`
	Digest   string       `json:"digest"`
	Log      LogSnapshot  `json:"log"`
	Trace    []TraceEntry `json:"trace"`
}
