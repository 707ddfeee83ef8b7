package solargeo

import "fmt"

// RangeError represents an input value outside its documented domain.
type RangeError struct {
	Field   string
	Message string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("input out of range for field '%s': %s", e.Field, e.Message)
}

// InvariantError represents a computed quantity outside the range the
// algorithm guarantees. It signals a defect or an unanticipated input
// combination and is never corrected silently.
type InvariantError struct {
	Quantity string
	Value    float64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("computation invariant violated: %s = %v", e.Quantity, e.Value)
}

// NotSupportedError represents a request outside what the averaging
// routine handles.
type NotSupportedError struct {
	Message string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("not supported: %s", e.Message)
}

// ArgumentError represents an argument value the routine does not
// recognize.
type ArgumentError struct {
	Argument string
	Message  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument '%s': %s", e.Argument, e.Message)
}
