package monitor

import "time"

// Status is the last observed state of the backing services.
type Status struct {
	EventStore  bool      `json:"event_store"`
	GroupCache  bool      `json:"group_cache"`
	Buffer      bool      `json:"buffer"`
	BufferSize  int       `json:"buffer_size"`
	DeadLetters int       `json:"dead_letters"`
	LastCheck   time.Time `json:"last_check"`
}

// Healthy reports whether the service can answer statistics queries.
func (s Status) Healthy() bool {
	return s.EventStore
}
