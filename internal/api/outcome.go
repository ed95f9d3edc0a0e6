package api

import (
	"net/http"

	"github.com/mattjoyce/taskgate/internal/task"
)

// Error codes that are not validation codes.
const (
	codeUnknownKind    = "unknown_kind"
	codeHandlerFailure = "handler_failure"
	codeTimeout        = "timeout"
	codeInternal       = "internal"
)

// translateOutcome maps an outcome to an HTTP status and JSON body.
func (s *Server) translateOutcome(o task.Outcome) (int, any) {
	switch o.Kind {
	case task.OutcomeSuccess:
		return http.StatusOK, RunResponse{Status: "success", Result: o.Message}
	case task.OutcomeValidationFailure:
		return http.StatusBadRequest, ErrorResponse{Error: o.Reason, Code: o.Code}
	case task.OutcomeUnknownKind:
		return http.StatusBadRequest, ErrorResponse{Error: o.Detail(), Code: codeUnknownKind}
	case task.OutcomeHandlerFailure:
		return http.StatusInternalServerError, ErrorResponse{Error: o.Detail(), Code: codeHandlerFailure}
	case task.OutcomeTimeout:
		return http.StatusRequestTimeout, ErrorResponse{Error: "request timeout", Code: codeTimeout}
	default:
		s.logger.Error("unrecognized outcome", "outcome", o.Kind.String())
		return http.StatusInternalServerError, ErrorResponse{Error: "unrecognized outcome " + o.Kind.String(), Code: codeInternal}
	}
}
