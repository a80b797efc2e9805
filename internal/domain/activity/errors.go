package activity

import "fmt"

// ListenerError reports a panic recovered from a notification listener.
// One listener panicking never prevents the remaining listeners from
// running; the detector logs the error and continues.
type ListenerError struct {
	// Index is the listener's position in registration order.
	Index int
	// Recovered is the value recovered from the panic.
	Recovered any
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("activity listener %d panicked: %v", e.Index, e.Recovered)
}

// Unwrap exposes the recovered value when it is itself an error.
func (e *ListenerError) Unwrap() error {
	if err, ok := e.Recovered.(error); ok {
		return err
	}
	return nil
}
