package ir

// Workflow is a declarative bus definition compiled from CUE.
//
// The workflow package assembles a Workflow into an engine.Builder by
// mapping handler and rollback names onto its built-in catalog.
type Workflow struct {
	Name          string             `json:"name"`
	Config        WorkflowConfig     `json:"config"`
	Events        []EventDecl        `json:"events,omitempty"`
	Actions       []ActionDecl       `json:"actions"`
	Subscriptions []SubscriptionDecl `json:"subscriptions,omitempty"`
	Triggers      []TriggerDecl      `json:"triggers,omitempty"`
	Run           []string           `json:"run,omitempty"`
}

// DefaultLogMaxSize is the ring size of every execution log when circular
// calls are allowed and no size is configured.
const DefaultLogMaxSize = 100

// WorkflowConfig mirrors engine.Config for declarative workflows.
type WorkflowConfig struct {
	AllowCircularCall bool `json:"allow_circular_call" yaml:"allow_circular_call"`
	LogMaxSize        int  `json:"log_max_size" yaml:"log_max_size"`
	Validation        bool `json:"validation" yaml:"validation"`
}

// EventDecl declares an event listeners may subscribe to.
type EventDecl struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data,omitempty"`
}

// BuiltinHandlers lists the handler names a workflow may use.
var BuiltinHandlers = []string{"noop", "emit", "fail", "error", "panic", "suspend", "dispatch"}

// BuiltinRollbacks lists the rollback names a workflow may use.
var BuiltinRollbacks = []string{"record", "none"}

// ActionDecl declares an action.
//
// Handler names a built-in handler (noop, emit, fail, error, panic,
// suspend, dispatch). Data is the payload emit/fail/suspend produce and
// Event the event dispatch sends.
type ActionDecl struct {
	ID         string         `json:"id"`
	Handler    string         `json:"handler"`
	Data       map[string]any `json:"data,omitempty"`
	Event      string         `json:"event,omitempty"`
	Require    []string       `json:"require,omitempty"`
	Alternates []string       `json:"alternates,omitempty"`
	Sealed     []string       `json:"sealed,omitempty"`
	Private    bool           `json:"private,omitempty"`
	Listen     string         `json:"listen,omitempty"`
	Contract   string         `json:"contract,omitempty"`
	External   bool           `json:"external,omitempty"`
	Repeatable bool           `json:"repeatable,omitempty"`
	Lock       bool           `json:"lock,omitempty"`
	Retries    int            `json:"retries,omitempty"`
	Rollback   string         `json:"rollback,omitempty"`
}

// SubscriptionDecl declares a conditional edge: when Subject completes
// with Status, Action is requested.
type SubscriptionDecl struct {
	Subject string `json:"subject"`
	Status  Status `json:"status"`
	Action  string `json:"action"`
}

// TriggerDecl declares an unconditional edge: whenever Subject completes,
// Action is requested.
type TriggerDecl struct {
	Subject string `json:"subject"`
	Action  string `json:"action"`
}

// Action returns the declaration for id, or false when absent.
func (w *Workflow) Action(id string) (ActionDecl, bool) {
	for _, a := range w.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ActionDecl{}, false
}
