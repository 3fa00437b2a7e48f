package harness

import (
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq int
	Op  string

	// Changes are the changes the step published, nil when it published
	// none.
	Changes *model.ModelChanges

	// Error is the code of the error the step failed with.
	Error string
}

// Encode returns the event as a value, with changes in the changes codec
// layout.
func (e TraceEvent) Encode() value.Object {
	obj := value.Object{
		"seq": value.Int(e.Seq),
		"op":  value.String(e.Op),
	}
	if e.Changes != nil {
		obj["changes"] = model.EncodeChanges(e.Changes)
	}
	if e.Error != "" {
		obj["error"] = value.String(e.Error)
	}
	return obj
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every step behaved as declared and every
	// expectation held.
	Pass bool

	Trace  []TraceEvent
	Errors []string

	// Model is the final published model.
	Model *model.Model
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
