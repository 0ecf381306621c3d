package harness

// TraceEvent is one statement or key-value call observed while a scenario
// ran. Seq numbers events in trace order.
type TraceEvent struct {
	Seq         int    `json:"seq"`
	Step        string `json:"step"`
	Op          string `json:"op"`
	Statement   string `json:"statement"`
	Bindings    []any  `json:"bindings,omitempty"`
	Consistency string `json:"consistency,omitempty"`
	Rows        uint64 `json:"rows"`
	Error       string `json:"error,omitempty"`
}

// StepResult is the outcome of one flow step.
type StepResult struct {
	Name     string `json:"name"`
	Op       string `json:"op"`
	SQL      string `json:"sql,omitempty"`
	Bindings []any  `json:"bindings,omitempty"`
	Rows     []any  `json:"rows,omitempty"`
	Value    any    `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Statements returns the trace events sent to the query service.
func (r *Result) Statements() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if isStatement(ev.Op) {
			out = append(out, ev)
		}
	}
	return out
}
