package index

import "github.com/Aman-CERP/ragindex/internal/store"

// OutcomeKind classifies the result of processing one resource.
type OutcomeKind int

const (
	// OutcomeOK means the resource produced segments to index.
	OutcomeOK OutcomeKind = iota
	// OutcomeSkip means there was nothing to do: unchanged or no content.
	OutcomeSkip
	// OutcomeFail means the resource could not be read or chunked.
	OutcomeFail
)

// String returns a human-readable representation of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeSkip:
		return "skip"
	case OutcomeFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Outcome is the result of loading one resource. Exactly one of Segments,
// Reason or Err is meaningful, selected by Kind.
type Outcome struct {
	Kind     OutcomeKind
	Segments []store.Segment
	Reason   string
	Err      error
}

// OK returns a successful outcome carrying segs in chunk order.
func OK(segs []store.Segment) Outcome {
	return Outcome{Kind: OutcomeOK, Segments: segs}
}

// Skip returns an outcome for a resource with nothing to index.
func Skip(reason string) Outcome {
	return Outcome{Kind: OutcomeSkip, Reason: reason}
}

// Fail returns an outcome for a resource that could not be processed.
func Fail(err error) Outcome {
	return Outcome{Kind: OutcomeFail, Err: err}
}
