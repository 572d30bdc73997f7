// Package result provides an explicit success-or-error value used by every
// public stage of the data source pipeline.
//
// A Result never converts implicitly: callers check IsOK/IsErr and then
// unwrap the side they expect.
package result

import "fmt"

// Result holds either a value of type T or an error, never both.
type Result[T any] struct {
	ok  T
	err error
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{ok: v}
}

// Err wraps an error. Passing a nil error is a programming mistake and panics.
func Err[T any](err error) Result[T] {
	if err == nil {
		panic("result: Err called with nil error")
	}
	return Result[T]{err: err}
}

// IsOK reports whether the result carries a value.
func (r Result[T]) IsOK() bool {
	return r.err == nil
}

// IsErr reports whether the result carries an error.
func (r Result[T]) IsErr() bool {
	return r.err != nil
}

// Unwrap returns the value and panics if the result is an error.
func (r Result[T]) Unwrap() T {
	if r.err != nil {
		panic(fmt.Sprintf("result: Unwrap on error result: %v", r.err))
	}
	return r.ok
}

// UnwrapErr returns the error and panics if the result is a value.
func (r Result[T]) UnwrapErr() error {
	if r.err == nil {
		panic("result: UnwrapErr on ok result")
	}
	return r.err
}

// Get returns both sides in the usual Go shape.
func (r Result[T]) Get() (T, error) {
	return r.ok, r.err
}

func (r Result[T]) String() string {
	if r.err != nil {
		return fmt.Sprintf("Err(%v)", r.err)
	}
	return fmt.Sprintf("OK(%v)", r.ok)
}
