// errors.go - Failure taxonomy for a recognition run

package ocr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a stable machine readable error class.
type ErrorCode string

const (
	ErrorInvalidImage      ErrorCode = "INVALID_IMAGE"
	ErrorEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorEngineExecution   ErrorCode = "ENGINE_EXECUTION_FAILED"
	ErrorAllEnginesFailed  ErrorCode = "ALL_ENGINES_FAILED"
)

// UserFacingMessage is the only failure text end users ever see.
const UserFacingMessage = "could not read image"

// InvalidImageError means the input could not be decoded. Fatal for the run.
type InvalidImageError struct {
	Cause error
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("%s: %v", ErrorInvalidImage, e.Cause)
}

func (e *InvalidImageError) Unwrap() error   { return e.Cause }
func (e *InvalidImageError) Code() ErrorCode { return ErrorInvalidImage }

// EngineUnavailableError means a backend is not usable here; it is skipped.
type EngineUnavailableError struct {
	Engine EngineID
	Reason string
	Cause  error
}

func (e *EngineUnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrorEngineUnavailable, e.Engine, e.Reason)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *EngineUnavailableError) Unwrap() error   { return e.Cause }
func (e *EngineUnavailableError) Code() ErrorCode { return ErrorEngineUnavailable }

// EngineExecutionError is one failed (pipeline, engine) attempt.
type EngineExecutionError struct {
	Engine   EngineID
	Pipeline string
	TimedOut bool
	Cause    error
}

func (e *EngineExecutionError) Error() string {
	what := "failed"
	if e.TimedOut {
		what = "timed out"
	}
	return fmt.Sprintf("%s: %s on %s %s: %v", ErrorEngineExecution, e.Engine, e.Pipeline, what, e.Cause)
}

func (e *EngineExecutionError) Unwrap() error   { return e.Cause }
func (e *EngineExecutionError) Code() ErrorCode { return ErrorEngineExecution }

// AllEnginesFailedError is returned when no attempt produced a result.
type AllEnginesFailedError struct {
	Failures []*EngineExecutionError
	Skipped  []*EngineUnavailableError
}

func (e *AllEnginesFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures)+len(e.Skipped))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s/%s", f.Engine, f.Pipeline))
	}
	for _, s := range e.Skipped {
		parts = append(parts, fmt.Sprintf("%s skipped", s.Engine))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: no engine was attempted", ErrorAllEnginesFailed)
	}
	return fmt.Sprintf("%s: %d attempts failed [%s]", ErrorAllEnginesFailed, len(e.Failures), strings.Join(parts, ", "))
}

func (e *AllEnginesFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+len(e.Skipped))
	for _, f := range e.Failures {
		out = append(out, f)
	}
	for _, s := range e.Skipped {
		out = append(out, s)
	}
	return out
}

func (e *AllEnginesFailedError) Code() ErrorCode { return ErrorAllEnginesFailed }

// CodeOf returns the ErrorCode carried anywhere in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// UserMessage maps any run error to the single message shown to users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return UserFacingMessage
}
