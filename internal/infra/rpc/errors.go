package rpc

import "fmt"

// ErrorKind classifies a call failure for retry decisions.
type ErrorKind int

const (
	// KindTransient covers connectivity faults: dial failures, timeouts,
	// dropped connections. Worth retrying.
	KindTransient ErrorKind = iota

	// KindRejection is a definitive JSON-RPC level rejection from the
	// service. Retrying the same call will not change the answer.
	KindRejection
)

// Error is a classified RPC failure.
type Error struct {
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// NewTransientError wraps a connectivity fault.
func NewTransientError(name string, err error) *Error {
	return &Error{Kind: KindTransient, Name: name, Message: err.Error()}
}

// NewRejectionError wraps a JSON-RPC error response.
func NewRejectionError(code int, message string) *Error {
	return &Error{
		Kind:    KindRejection,
		Name:    fmt.Sprintf("RpcError(%d)", code),
		Message: message,
	}
}
