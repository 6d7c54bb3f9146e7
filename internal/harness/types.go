package harness

// Step outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeDenied   = "denied"
	OutcomeDangling = "dangling"
)

// TraceEvent records one authored step.
type TraceEvent struct {
	Step       int    `json:"step"`
	Fact       string `json:"fact"`
	Type       string `json:"type"`
	As         string `json:"as,omitempty"`
	Outcome    string `json:"outcome"`
	Signatures int    `json:"signatures"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists the steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
