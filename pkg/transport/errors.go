package transport

import (
	"fmt"
	"net"
	"strconv"
)

// ConnectionError is the single failure kind produced when establishing
// the broker connection. Resolution, socket, and timeout faults are all
// normalized into it with the underlying cause preserved, so callers
// branch on one type with errors.As.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

// Error implements error.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v",
		net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
