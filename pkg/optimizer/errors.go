package optimizer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEligibleCandidate is returned when a filter stage empties the set.
	ErrNoEligibleCandidate = errors.New("no eligible candidate")

	// ErrUnknownStrategy is returned for an unrecognised ranking strategy.
	ErrUnknownStrategy = errors.New("unknown ranking strategy")

	// ErrInvalidRequest is returned for negative constraints.
	ErrInvalidRequest = errors.New("invalid optimize request")
)

// NoEligibleCandidateError reports the stage that emptied the candidate set.
type NoEligibleCandidateError struct {
	// Stage is the filter that removed the last candidate.
	Stage Stage

	// Considered is how many candidates entered that stage.
	Considered int
}

// Error implements the error interface.
func (e *NoEligibleCandidateError) Error() string {
	return fmt.Sprintf("no eligible candidate: %s filter removed all %d candidates", e.Stage, e.Considered)
}

// Is implements error matching for errors.Is().
func (e *NoEligibleCandidateError) Is(target error) bool {
	return target == ErrNoEligibleCandidate
}
