package models

// OutcomeKind distinguishes the three results a service call can produce.
type OutcomeKind int

const (
	// OutcomeSuccess carries a result value.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeAmbiguity means the service needs a user decision to continue.
	OutcomeAmbiguity
	// OutcomeFailure carries an error detail.
	OutcomeFailure
)

// String returns the wire name of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAmbiguity:
		return "ambiguity"
	case OutcomeFailure:
		return "error"
	default:
		return "unknown"
	}
}

// Option is one machine-readable choice offered with an ambiguity.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// Ambiguity describes the decision a service is waiting on.
type Ambiguity struct {
	Question string   `json:"question"`
	Options  []Option `json:"options,omitempty"`
	// Context is whatever raw payload the service attached.
	Context any `json:"context,omitempty"`
}

// Outcome is the result of one ServiceInvoker call.
type Outcome struct {
	Kind      OutcomeKind
	Value     any
	Ambiguity *Ambiguity
	Detail    string
}

// Success wraps a result value.
func Success(v any) Outcome {
	return Outcome{Kind: OutcomeSuccess, Value: v}
}

// NeedsDecision wraps an ambiguity interrupt.
func NeedsDecision(question string, options []Option, raw any) Outcome {
	return Outcome{
		Kind:      OutcomeAmbiguity,
		Ambiguity: &Ambiguity{Question: question, Options: options, Context: raw},
	}
}

// Failure wraps a service error detail.
func Failure(detail string) Outcome {
	return Outcome{Kind: OutcomeFailure, Detail: detail}
}
