package shipment

// Status is the lifecycle state of a shipment. The progression only ever moves
// forward except for exception recovery, and verification is the single
// terminal state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusInTransit Status = "in_transit"
	StatusException Status = "exception"
	StatusDelivered Status = "delivered"
	StatusVerified  Status = "verified"
)

var statusCodes = map[Status]uint8{
	StatusCreated:   0,
	StatusInTransit: 1,
	StatusException: 2,
	StatusDelivered: 3,
	StatusVerified:  4,
}

var transitions = map[Status][]Status{
	StatusCreated:   {StatusInTransit},
	StatusInTransit: {StatusDelivered, StatusException},
	StatusException: {StatusInTransit},
	StatusDelivered: {StatusVerified},
}

func (s Status) Valid() bool {
	_, ok := statusCodes[s]
	return ok
}

// Code returns the compact wire form of the status.
func (s Status) Code() uint8 {
	return statusCodes[s]
}

func StatusFromCode(code uint8) (Status, bool) {
	for s, c := range statusCodes {
		if c == code {
			return s, true
		}
	}
	return "", false
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}
