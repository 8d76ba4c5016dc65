package session

// Status is the authoritative lifecycle state of one fact-check session.
type Status string

const (
	// StatusIdle means no run is active and no result is pending display.
	StatusIdle Status = "idle"
	// StatusRunning means a remote run is active and streaming events.
	StatusRunning Status = "running"
	// StatusInterrupting means the user requested interruption and the remote
	// confirmation has not arrived yet.
	StatusInterrupting Status = "interrupting"
	// StatusInterrupted means the run stopped before producing a completion.
	StatusInterrupted Status = "interrupted"
	// StatusCompleted means the run finished and delivered a terminal event.
	StatusCompleted Status = "completed"
)

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusIdle: {
		StatusRunning: {},
		// Launch failures land in interrupted without ever running so the
		// failure stays visible in the event log.
		StatusInterrupted: {},
	},
	StatusRunning: {
		StatusInterrupting: {},
		StatusInterrupted:  {},
		StatusCompleted:    {},
	},
	StatusInterrupting: {
		// Interrupt-call failure reverts to running when no terminal event
		// superseded the attempt.
		StatusRunning:     {},
		StatusInterrupted: {},
		StatusCompleted:   {},
	},
	StatusInterrupted: {
		StatusIdle: {},
	},
	StatusCompleted: {
		StatusIdle: {},
	},
}

// Active reports whether a remote run is in flight for this status.
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusInterrupting
}

// Terminal reports whether the session ended without being reset yet.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusInterrupted
}

func transitionAllowed(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
