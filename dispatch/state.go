package dispatch

// State is a step of the dispatch loop.
type State int

const (
	StateAwaitingModel State = iota
	StateReceivingLines
	StateCallReady
	StateExecuting
	StateAppendingResult
	StateAwaitingUser
	StateTerminated
)

var stateNames = [...]string{
	StateAwaitingModel:   "awaiting_model",
	StateReceivingLines:  "receiving_lines",
	StateCallReady:       "call_ready",
	StateExecuting:       "executing",
	StateAppendingResult: "appending_result",
	StateAwaitingUser:    "awaiting_user",
	StateTerminated:      "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
