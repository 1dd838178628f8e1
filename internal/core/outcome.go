package core

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	Rejected
	AuthExpired
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case AuthExpired:
		return "auth_expired"
	case Transient:
		return "transient"
	}
	return "unknown"
}

// Result is what a delivery attempt reports. Reason is the endpoint's error
// code or the local failure for anything but Delivered.
type Result struct {
	Outcome Outcome
	Reason  string
	// Ts is the Slack message timestamp on success.
	Ts string
}

func (r Result) Delivered() bool { return r.Outcome == Delivered }

// Err converts a non-delivered result into a *DeliveryError.
func (r Result) Err() error {
	if r.Outcome == Delivered {
		return nil
	}
	return &DeliveryError{Outcome: r.Outcome, Reason: r.Reason}
}
