package session

// OutcomeKind tells the caller whether an operation finished or navigated away.
type OutcomeKind int

const (
	// OutcomeCompleted means the operation finished on the current page.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeRedirect means the page was sent elsewhere and the caller must stop.
	OutcomeRedirect
)

// Outcome is the result of an operation that may end in a redirect.
type Outcome struct {
	// Kind is the outcome variant.
	Kind OutcomeKind
	// Location is the redirect target for OutcomeRedirect.
	Location string
}

// IsRedirect reports whether the outcome is a redirect.
func (o Outcome) IsRedirect() bool {
	return o.Kind == OutcomeRedirect
}

func completed() Outcome {
	return Outcome{Kind: OutcomeCompleted}
}

func redirect(location string) Outcome {
	return Outcome{Kind: OutcomeRedirect, Location: location}
}
