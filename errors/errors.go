package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass says how a caller should react to an error.
type ErrorClass int

// Error classes
const (
	ErrorTransient ErrorClass = iota // retry later
	ErrorInvalid                     // fix the input
	ErrorFatal                       // stop
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Graph structure. Rejected at the mutating call.
var (
	ErrSelfLoop     = errors.New("edge source and target are the same node")
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
	ErrDuplicateID  = errors.New("duplicate id")
	ErrInvalidPort  = errors.New("invalid port")
	ErrEmptyGraph   = errors.New("graph has no nodes")
)

// Parameters and the instruction catalogue.
var (
	ErrUnknownField     = errors.New("unknown parameter field")
	ErrNoInstruction    = errors.New("instruction not found")
	ErrClientValidation = errors.New("parameter validation failed")
	ErrNotInitialized   = errors.New("not initialized")
)

// Runs.
var (
	ErrRunInProgress     = errors.New("a run is already in progress")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrServerValidation  = errors.New("engine rejected the flow")
)

// Transport.
var (
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrRateLimited       = errors.New("rate limited")
)

// Documents and storage.
var (
	ErrInvalidData        = errors.New("invalid data format")
	ErrDataCorrupted      = errors.New("data corrupted")
	ErrParsingFailed      = errors.New("parsing failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrFlowNotFound       = errors.New("flow not found")
	ErrVersionConflict    = errors.New("version conflict")
)

// Configuration.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// sentinelClass gives the class of a sentinel that reaches a caller
// without a ClassifiedError around it.
var sentinelClass = []struct {
	err   error
	class ErrorClass
}{
	{ErrConnectionTimeout, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrNoConnection, ErrorTransient},
	{ErrStorageUnavailable, ErrorTransient},
	{ErrRateLimited, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},

	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrDataCorrupted, ErrorFatal},

	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrSelfLoop, ErrorInvalid},
	{ErrNodeNotFound, ErrorInvalid},
	{ErrEdgeNotFound, ErrorInvalid},
	{ErrDuplicateID, ErrorInvalid},
	{ErrInvalidPort, ErrorInvalid},
	{ErrEmptyGraph, ErrorInvalid},
	{ErrUnknownField, ErrorInvalid},
	{ErrClientValidation, ErrorInvalid},
	{ErrServerValidation, ErrorInvalid},
	{ErrFlowNotFound, ErrorInvalid},
	{ErrVersionConflict, ErrorInvalid},
}

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf finds the class of err. The outermost ClassifiedError wins, then
// known sentinels, then network timeouts.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, s := range sentinelClass {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorTransient, true
	}
	return 0, false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	class, ok := classOf(err)
	return ok && class == ErrorTransient
}

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	class, ok := classOf(err)
	return ok && class == ErrorFatal
}

// IsInvalid reports whether err was caused by bad input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	class, ok := classOf(err)
	return ok && class == ErrorInvalid
}

// IsStructural reports whether err is a graph shape violation
// (self-loop, dangling endpoint, duplicate id, bad port).
func IsStructural(err error) bool {
	return errors.Is(err, ErrSelfLoop) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidPort)
}

// Classify returns the class of err. Unrecognized errors are transient.
func Classify(err error) ErrorClass {
	if class, ok := classOf(err); ok && err != nil {
		return class
	}
	return ErrorTransient
}

// Wrap adds context in the form "component.method: action failed: cause".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapClassified(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err as transient.
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps err as fatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps err as invalid.
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, err, component, method, action)
}
