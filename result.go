package ygggo_invdb

import (
	"encoding/json"
	"strings"
)

// Failure is the error branch of a Result. Msg is always a stable,
// caller-safe message; the raw driver diagnostic is kept for logs only.
type Failure struct {
	Category   Category
	Msg        string
	Errno      *int
	SQLState   string
	Diagnostic string
	cause      error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return string(f.Category) + ": " + f.Msg
}

// Unwrap exposes the underlying driver error, if any.
func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.cause
}

// Result is the outcome of every data-access operation: either Data or Err.
type Result[T any] struct {
	Data T
	Err  *Failure
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Get returns both branches so callers handle the failure explicitly.
func (r Result[T]) Get() (T, *Failure) { return r.Data, r.Err }

// Ok builds a successful Result.
func Ok[T any](data T) Result[T] { return Result[T]{Data: data} }

// Fail builds a failed Result.
func Fail[T any](f *Failure) Result[T] { return Result[T]{Err: f} }

// ExecutionResult is the uniform response envelope handed to transport code.
type ExecutionResult struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Msg      string `json:"msg,omitempty"`
	Errno    *int   `json:"errno,omitempty"`
	SQLState string `json:"sqlstate,omitempty"`
}

// MarshalJSON always emits data on success, as null when the operation found
// nothing, and omits it on failure.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	type envelope ExecutionResult
	if !r.Success {
		return json.Marshal(envelope(r))
	}
	return json.Marshal(struct {
		envelope
		Data any `json:"data"`
	}{envelope(r), r.Data})
}

// Envelope converts r into the uniform ExecutionResult shape.
func (r Result[T]) Envelope() ExecutionResult {
	if r.Err != nil {
		return ExecutionResult{
			Success:  false,
			Msg:      r.Err.Msg,
			Errno:    r.Err.Errno,
			SQLState: r.Err.SQLState,
		}
	}
	return ExecutionResult{Success: true, Data: r.Data}
}

// newFailure classifies a driver error into a Failure.
func newFailure(err error) *Failure {
	errno, sqlstate, diag := Diagnose(err)
	return &Failure{
		Category:   Classify(err).Category(),
		Msg:        StableMessage(err),
		Errno:      errno,
		SQLState:   sqlstate,
		Diagnostic: diag,
		cause:      err,
	}
}

// unavailable is the failure returned when no connection could be obtained.
func unavailable(err error) *Failure {
	f := &Failure{Category: CategoryPoolUnavailable, Msg: MsgConnectionUnavailable, cause: err}
	if err != nil {
		f.Diagnostic = strings.TrimSpace(err.Error())
	}
	return f
}
