// Package failure defines the error taxonomy of the data source pipeline and
// maps errors onto the categories used by exit code specifications.
package failure

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyAgentData is returned when a source delivered no data at all.
var ErrEmptyAgentData = errors.New("empty output from host")

// Category groups errors for the exit code specification.
type Category string

const (
	CategoryEmptyOutput Category = "empty_output"
	CategoryConnection  Category = "connection"
	CategoryTimeout     Category = "timeout"
	CategoryException   Category = "exception"
)

// AgentError is a failure talking to the agent of a host.
type AgentError struct {
	Host string
	Err  error
}

func (e *AgentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("agent error on %s", e.Host)
	}
	return e.Err.Error()
}

func (e *AgentError) Unwrap() error { return e.Err }

// SNMPError is a failure reported by an SNMP backend.
type SNMPError struct {
	Host string
	Err  error
}

func (e *SNMPError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("SNMP error on %s", e.Host)
	}
	return e.Err.Error()
}

func (e *SNMPError) Unwrap() error { return e.Err }

// IPLookupError means the address of a host could not be resolved.
type IPLookupError struct {
	Host string
	Err  error
}

func (e *IPLookupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to lookup IP address of %s", e.Host)
	}
	return fmt.Sprintf("failed to lookup IP address of %s: %v", e.Host, e.Err)
}

func (e *IPLookupError) Unwrap() error { return e.Err }

// TimeoutError is returned when an operation ran out of time.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("timed out after %s while %s", e.After, e.Op)
	}
	return fmt.Sprintf("timed out while %s", e.Op)
}

// Classify maps an error to its category. Empty output is checked before
// connection errors because an empty agent reply is also an agent failure.
func Classify(err error) Category {
	var (
		agentErr  *AgentError
		snmpErr   *SNMPError
		lookupErr *IPLookupError
		timeout   *TimeoutError
	)
	switch {
	case errors.Is(err, ErrEmptyAgentData):
		return CategoryEmptyOutput
	case errors.As(err, &agentErr), errors.As(err, &snmpErr), errors.As(err, &lookupErr):
		return CategoryConnection
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	default:
		return CategoryException
	}
}

// PanicError carries a recovered panic value as an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// FromPanic turns a recovered value into an error.
func FromPanic(v any) error {
	return &PanicError{Value: v}
}
