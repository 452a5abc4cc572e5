package query

// State is the lifecycle position of one slot within a submission.
type State int

const (
	StatePending State = iota
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of one slot. Only Text is meaningful on success and
// only Message on failure.
type Result struct {
	State   State
	Text    string
	Message string
}

func Pending() Result { return Result{State: StatePending} }

func Succeeded(text string) Result { return Result{State: StateSuccess, Text: text} }

func Failed(message string) Result { return Result{State: StateFailure, Message: message} }

// FromError is the failure result for err.
func FromError(err error) Result {
	if err == nil {
		return Failed("unknown error")
	}
	return Failed(err.Error())
}

func (r Result) Settled() bool { return r.State != StatePending }

// Display is the text a slot shows for this result.
func (r Result) Display() string {
	switch r.State {
	case StateSuccess:
		return r.Text
	case StateFailure:
		return "Error: " + r.Message
	default:
		return "Loading..."
	}
}
