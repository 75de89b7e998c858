package pipeline

import "net/http"

// Outcome tells the pipeline whether to run the next stage.
type Outcome int

const (
	// Continue passes control to the next stage.
	Continue Outcome = iota

	// Handled means the stage wrote the response and the request is done.
	Handled
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Handled:
		return "handled"
	default:
		return "unknown"
	}
}

// Stage is one step of the request pipeline.
//
// Process may return a replacement request (for example one carrying new
// context values); a nil request keeps the current one. A non-nil error
// short-circuits the pipeline and is rendered by the error handler, so a
// stage that returns an error must not write the response itself.
type Stage interface {
	Name() string
	Process(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome, error)

type namedStage struct {
	name string
	fn   StageFunc
}

// NewStage returns a Stage with the given name backed by fn.
func NewStage(name string, fn StageFunc) Stage {
	return &namedStage{name: name, fn: fn}
}

func (s *namedStage) Name() string { return s.name }

func (s *namedStage) Process(w http.ResponseWriter, r *http.Request) (*http.Request, Outcome, error) {
	return s.fn(w, r)
}
