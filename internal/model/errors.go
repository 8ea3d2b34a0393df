package model

import "fmt"

// ErrorKind is the closed error taxonomy of spec §7, replacing the source's
// string-matched reasons with an explicit enum (REDESIGN FLAG 3).
type ErrorKind string

const (
	KindConnection          ErrorKind = "connection"
	KindAuthExpired         ErrorKind = "auth_expired"
	KindAuthenticationPerm  ErrorKind = "authentication_permanent"
	KindValidation          ErrorKind = "validation"
	KindRateLimit           ErrorKind = "rate_limit"
	KindTransient           ErrorKind = "transient"
	KindQueueOverflow       ErrorKind = "queue_overflow"
)

// ClassifiedError carries an ErrorKind alongside the wrapped cause.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Retryable reports whether the component policy should retry this error.
// Validation, rate-limit, queue-overflow and permanent-auth errors are
// non-retryable; connection/transient/auth-expired (after one refresh) are.
func (e *ClassifiedError) Retryable() bool {
	switch e.Kind {
	case KindValidation, KindRateLimit, KindQueueOverflow, KindAuthenticationPerm:
		return false
	default:
		return true
	}
}

func NewClassifiedError(kind ErrorKind, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Err: err}
}

func ErrValidationf(format string, args ...interface{}) error {
	return NewClassifiedError(KindValidation, fmt.Errorf(format, args...))
}

func ErrTransientf(format string, args ...interface{}) error {
	return NewClassifiedError(KindTransient, fmt.Errorf(format, args...))
}

// ErrorKindOf extracts the ErrorKind from err, defaulting to KindTransient
// for errors that were not explicitly classified.
func ErrorKindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if asClassified(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

func asClassified(err error, target **ClassifiedError) bool {
	for err != nil {
		if ce, ok := err.(*ClassifiedError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// OutboundFailureReason names a send-failure reason the transport adapter may
// report; terminalReasons below is the fixed non-retryable list (spec §4.1
// step 6).
type OutboundFailureReason string

const (
	ReasonInvalidNumber OutboundFailureReason = "invalid_number"
	ReasonBlocked       OutboundFailureReason = "blocked"
	ReasonNotFound      OutboundFailureReason = "not_found"
	ReasonForbidden     OutboundFailureReason = "forbidden"
	ReasonRateLimit     OutboundFailureReason = "rate_limit"
	ReasonQueueOverflow OutboundFailureReason = "queue_overflow"
)

var terminalReasons = map[OutboundFailureReason]bool{
	ReasonInvalidNumber: true,
	ReasonBlocked:       true,
	ReasonNotFound:      true,
	ReasonForbidden:     true,
	ReasonRateLimit:     true,
	ReasonQueueOverflow: true,
}

// IsTerminal reports whether reason is in the fixed non-retryable list.
func (r OutboundFailureReason) IsTerminal() bool { return terminalReasons[r] }
