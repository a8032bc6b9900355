package domain

import "fmt"

// RejectReason enumerates why the circuit breaker refused an opportunity.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectExceedsPositionLimit
	RejectExceedsDailyLossLimit
	RejectCircuitOpen
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "None"
	case RejectExceedsPositionLimit:
		return "ExceedsPositionLimit"
	case RejectExceedsDailyLossLimit:
		return "ExceedsDailyLossLimit"
	case RejectCircuitOpen:
		return "CircuitOpen"
	default:
		return fmt.Sprintf("RejectReason(%d)", int(r))
	}
}

// Admission is the outcome of a circuit breaker check.
type Admission struct {
	Admitted bool
	Reason   RejectReason
}

// Admit is the admitted outcome.
func Admit() Admission { return Admission{Admitted: true} }

// Reject returns a rejected outcome with the given reason.
func Reject(r RejectReason) Admission { return Admission{Reason: r} }

func (a Admission) String() string {
	if a.Admitted {
		return "Admitted"
	}
	return "Rejected(" + a.Reason.String() + ")"
}

// BreakerState is the process-wide risk budget.
type BreakerState struct {
	CurrentExposure        int64 // open contracts
	OpenNotional           Cents // capital committed to open positions
	CumulativeRealizedLoss Cents
	Tripped                bool
	TripReason             RejectReason
}
