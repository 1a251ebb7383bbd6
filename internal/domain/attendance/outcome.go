package attendance

// Outcome reports what a reconciliation call did with a scan event.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeInserted
	OutcomeUpdated
	OutcomeSuppressed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSuppressed:
		return "suppressed"
	}
	return "failed"
}
