package bootstage

import "fmt"

// UnknownStageError indicates a stage name that has not been registered with the Coordinator.
type UnknownStageError string

// Error returns the error message for a UnknownStageError.
func (u UnknownStageError) Error() string {
	return fmt.Sprintf("no such stage: %q", string(u))
}

// DuplicateBeginError indicates an attempt to begin a stage that has already begun.
type DuplicateBeginError string

// Error returns the error message for a DuplicateBeginError.
func (d DuplicateBeginError) Error() string {
	return fmt.Sprintf("tried to begin stage %q twice", string(d))
}

// SelfReferenceError indicates a stage that attempts to prevent itself.
type SelfReferenceError string

// Error returns the error message for a SelfReferenceError.
func (s SelfReferenceError) Error() string {
	return fmt.Sprintf("self-reference: %q", string(s))
}

// CyclicReferenceError indicates that registering a prevention would make two or more stages wait for each other.
type CyclicReferenceError string

// Error returns the error message for a CyclicReferenceError.
func (c CyclicReferenceError) Error() string {
	return fmt.Sprintf("cyclic reference: %s", string(c))
}

// ParseError represents a problem with a launch order formula given to ParseOrder.
type ParseError struct {
	message, details string
}

// newParseError is a convenience function for creating a new ParseError.
func newParseError(details string) ParseError {
	return ParseError{parseErrMsg, details}
}

// Error satisfies the error interface by returning an error message with parse error details.
func (e ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.message, e.details)
}

// Check that errors satisfy the error interface.
var _ error = UnknownStageError("")
var _ error = DuplicateBeginError("")
var _ error = SelfReferenceError("")
var _ error = CyclicReferenceError("")
var _ error = ParseError{}
