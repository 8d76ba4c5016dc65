package event

// Log is the append-only ordered record of received events. Entries are never
// mutated or reordered after append; the whole log is cleared only when the
// owning session resets or starts a new run. Log is not self-synchronizing:
// the session controller serializes all access under its own lock.
type Log struct {
	entries []Event
}

// Append adds one event at the tail.
func (l *Log) Append(ev Event) {
	l.entries = append(l.entries, ev)
}

// Entries returns a copy of the log in delivery order.
func (l *Log) Entries() []Event {
	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	return len(l.entries)
}

// Clear discards all entries.
func (l *Log) Clear() {
	l.entries = nil
}
