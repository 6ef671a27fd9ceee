// Package failure classifies errors at the point they originate so callers
// can decide retry, eviction and escalation without inspecting message text.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Class identifies how an error should be handled
type Class string

const (
	// Transient covers network and navigation problems; retried with backoff
	Transient Class = "transient"
	// Timeout means the action did not finish within its deadline; retried
	Timeout Class = "timeout"
	// RateLimited reschedules the action without consuming a retry
	RateLimited Class = "rate_limited"
	// SessionInvalid is fatal to the worker and to the action
	SessionInvalid Class = "session_invalid"
	// CampaignNotRunning fails the action immediately
	CampaignNotRunning Class = "campaign_not_running"
	// UnsupportedAction is a configuration error; never retried
	UnsupportedAction Class = "unsupported_action"
	// ProxyIssue is recorded against the proxy and retried
	ProxyIssue Class = "proxy_issue"
	// WorkerInit means a worker could not be built for the account
	WorkerInit Class = "worker_init"
	// Shutdown rejects in-flight work when the engine stops
	Shutdown Class = "shutdown"
)

// Error is an error tagged with its class and the operation that produced it
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by class so errors.Is(err, failure.New(c, "", nil)) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Class == e.Class && (t.Op == "" || t.Op == e.Op)
}

// New tags err with a class
func New(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// Errorf builds a classified error from a format string
func Errorf(class Class, op, format string, args ...any) *Error {
	return &Error{Class: class, Op: op, Err: fmt.Errorf(format, args...)}
}

// ClassOf returns the class of the outermost classified error in err's chain.
// Unclassified deadline errors count as Timeout, cancellations as Shutdown,
// and everything else as Transient.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, context.Canceled):
		return Shutdown
	}
	return Transient
}

// Retryable reports whether an action failing with this class may be retried with backoff
func (c Class) Retryable() bool {
	switch c {
	case Transient, Timeout, ProxyIssue, WorkerInit:
		return true
	}
	return false
}

// EvictsWorker reports whether the worker that produced the error must be torn down
func (c Class) EvictsWorker() bool {
	return c == SessionInvalid
}
