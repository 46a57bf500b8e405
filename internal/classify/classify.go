// Package classify holds the keyword heuristics used by the protocol layer.
//
// These are deliberately simple substring checks with no negation handling:
// a description reading "don't implement this" still matches "implement".
// Downstream consumers depend on the current behavior, so changes here need
// coordination, not silent fixes.
package classify

import "strings"

// Complexity tags how hard a task looks from its description.
type Complexity string

const (
	ComplexityEasy   Complexity = "easy"
	ComplexityMedium Complexity = "medium"
	ComplexityHard   Complexity = "hard"
)

// TaskComplexity sniffs a task description for complexity keywords.
func TaskComplexity(description string) Complexity {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "complex"):
		return ComplexityHard
	case strings.Contains(d, "simple"):
		return ComplexityEasy
	default:
		return ComplexityMedium
	}
}

// RootCause is the heuristic classification of a test failure message.
type RootCause string

const (
	CauseNullReference RootCause = "null_reference"
	CauseLogicError    RootCause = "logic_error"
	CauseAsyncIssue    RootCause = "async_issue"
	CauseMockIssue     RootCause = "mock_issue"
	CauseModuleIssue   RootCause = "module_issue"
	CauseUnknown       RootCause = "unknown"
)

// FailureRootCause maps an error message to a likely root cause. Checks run
// in a fixed order; the first match wins.
func FailureRootCause(errorText string) RootCause {
	e := strings.ToLower(errorText)
	switch {
	case containsAny(e, "undefined", "null", "nil pointer"):
		return CauseNullReference
	case containsAny(e, "expected", "actual"):
		return CauseLogicError
	case containsAny(e, "timeout", "timed out", "async"):
		return CauseAsyncIssue
	case containsAny(e, "mock", "spy", "stub"):
		return CauseMockIssue
	case containsAny(e, "module", "import", "cannot find package"):
		return CauseModuleIssue
	default:
		return CauseUnknown
	}
}

// ObservationClass buckets a reported observation.
type ObservationClass string

const (
	ObservationFollowUp ObservationClass = "follow_up"
	ObservationCritical ObservationClass = "critical"
	ObservationNoted    ObservationClass = "noted"
)

// ObservationKind classifies free-form observation text. Follow-up wording
// outranks critical wording, which outranks the default.
func ObservationKind(text string) ObservationClass {
	o := strings.ToLower(text)
	switch {
	case containsAny(o, "follow-up", "follow up", "followup"):
		return ObservationFollowUp
	case containsAny(o, "critical", "bug", "error"):
		return ObservationCritical
	default:
		return ObservationNoted
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
