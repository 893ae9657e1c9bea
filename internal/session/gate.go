package session

const DefaultRequiredTurns = 4

// Decision is the outcome of the end-interview gate.
type Decision struct {
	Allowed   bool
	Remaining int
}

// CanEnd reports whether an interview with turnCount answered turns may be
// ended, and how many more answers are needed otherwise. A non-positive
// required falls back to DefaultRequiredTurns.
func CanEnd(turnCount, required int) Decision {
	if required <= 0 {
		required = DefaultRequiredTurns
	}
	remaining := required - turnCount
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: turnCount >= required, Remaining: remaining}
}
