package portone

import "fmt"

// TransportError wraps a network-level failure. The call may or may not have
// reached the provider; callers decide whether to retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("portone %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// GatewayError is a non-2xx response from the provider. The business failure
// is encoded in the body; Raw keeps it for logging.
type GatewayError struct {
	Op         string
	StatusCode int
	Type       string
	Message    string
	Raw        []byte
}

func (e *GatewayError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("portone %s: status %d: %s: %s", e.Op, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("portone %s: status %d", e.Op, e.StatusCode)
}
