package agreement

// Status represents the lifecycle of a supply agreement. The numeric code is
// the wire form; everything inside the engine uses the named constant.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDisputed  Status = "disputed"
	StatusCanceled  Status = "canceled"
)

var statusCodes = map[Status]uint8{
	StatusPending:   0,
	StatusActive:    1,
	StatusCompleted: 2,
	StatusDisputed:  3,
	StatusCanceled:  4,
}

// transitions is the complete allow-list. Any (from, to) pair absent here is
// illegal. Disputed exits only happen through dispute resolution.
var transitions = map[Status][]Status{
	StatusPending:  {StatusActive, StatusCanceled},
	StatusActive:   {StatusCompleted, StatusDisputed, StatusCanceled},
	StatusDisputed: {StatusActive, StatusCompleted, StatusCanceled},
}

// CanTransitionTo reports whether the move from s to next is on the allow-list.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusCodes[s]
	return ok
}

// Code returns the numeric wire form of the status.
func (s Status) Code() uint8 {
	return statusCodes[s]
}

// StatusFromCode maps a wire code back to a named status.
func StatusFromCode(code uint8) (Status, bool) {
	for s, c := range statusCodes {
		if c == code {
			return s, true
		}
	}
	return "", false
}
