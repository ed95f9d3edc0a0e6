package task

import (
	"fmt"
	"time"
)

// OutcomeKind tags the terminal result of one task execution.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeValidationFailure
	OutcomeUnknownKind
	OutcomeHandlerFailure
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeValidationFailure:
		return "validation_failure"
	case OutcomeUnknownKind:
		return "unknown_kind"
	case OutcomeHandlerFailure:
		return "handler_failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Validation failure codes.
const (
	CodeAccessDenied      = "access_denied"
	CodeOperationDenied   = "operation_denied"
	CodeInvalidParameter  = "invalid_parameter"
	CodeInvalidDescriptor = "invalid_descriptor"
)

// Outcome is exactly one of Success, ValidationFailure, UnknownKind,
// HandlerFailure or Timeout. Only the fields of the tagged variant are set.
type Outcome struct {
	Kind OutcomeKind

	// Message is the handler's success message.
	Message string
	// Code and Reason describe a validation failure.
	Code   string
	Reason string
	// TaskKind is the unresolved kind for UnknownKind.
	TaskKind Kind
	// Cause is the wrapped collaborator error for HandlerFailure.
	Cause error
	// After is the elapsed budget for Timeout.
	After time.Duration
}

func Success(message string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Message: message}
}

func ValidationFailure(code, reason string) Outcome {
	return Outcome{Kind: OutcomeValidationFailure, Code: code, Reason: reason}
}

func UnknownKind(kind Kind) Outcome {
	return Outcome{Kind: OutcomeUnknownKind, TaskKind: kind}
}

func HandlerFailure(cause error) Outcome {
	if cause == nil {
		cause = fmt.Errorf("handler failed without a cause")
	}
	return Outcome{Kind: OutcomeHandlerFailure, Cause: cause}
}

func Timeout(after time.Duration) Outcome {
	return Outcome{Kind: OutcomeTimeout, After: after}
}

// Detail is a single human-readable line for logs and error bodies.
func (o Outcome) Detail() string {
	switch o.Kind {
	case OutcomeSuccess:
		return o.Message
	case OutcomeValidationFailure:
		return o.Reason
	case OutcomeUnknownKind:
		return fmt.Sprintf("unknown task type: %q", string(o.TaskKind))
	case OutcomeHandlerFailure:
		return fmt.Sprintf("task execution failed: %v", o.Cause)
	case OutcomeTimeout:
		if o.After > 0 {
			return fmt.Sprintf("request timeout after %s", o.After)
		}
		return "request timeout"
	default:
		return o.Kind.String()
	}
}
