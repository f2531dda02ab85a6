package harness

import "github.com/roach88/framestate/internal/store"

// Trace event types.
const (
	EventStep     = "step"
	EventRow      = "row"
	EventRejected = "rejected"
)

// TraceEvent is one entry of a scenario trace: a committed step, a row it
// produced, or a rejected frame.
type TraceEvent struct {
	Type    string         `json:"type"`
	Step    int64          `json:"step"`
	Seq     int64          `json:"seq,omitempty"`
	Query   string         `json:"query,omitempty"`
	Entity  string         `json:"entity,omitempty"`
	Values  map[string]any `json:"values,omitempty"`
	Live    int            `json:"live,omitempty"`
	Created []string       `json:"created,omitempty"`
	Retired []string       `json:"retired,omitempty"`
	Code    string         `json:"code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every frame behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists steps, rows and rejections in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Rows are the rows read back from the run log.
	Rows []store.StoredRow `json:"-"`

	// Live is the live entity count after each committed step.
	Live map[int64]int `json:"-"`

	// Rejected maps rejected steps to their error code.
	Rejected map[int64]string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Live:     make(map[int64]int),
		Rejected: make(map[int64]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
