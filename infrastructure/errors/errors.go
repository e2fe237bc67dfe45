// Package errors provides unified error handling for the platform core.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Input validation errors (§7 "Input validation")
	ErrCodeInvalidVerdict        ErrorCode = "VAL_1001"
	ErrCodeConfidenceOutOfRange  ErrorCode = "VAL_1002"
	ErrCodeInvalidArtifact       ErrorCode = "VAL_1003"
	ErrCodeInvalidBountySpec     ErrorCode = "VAL_1004"

	// Admission errors (§7 "Admission")
	ErrCodeBountyNotActive       ErrorCode = "ADM_2001"
	ErrCodePastDeadline          ErrorCode = "ADM_2002"
	ErrCodeParticipantCapReached ErrorCode = "ADM_2003"
	ErrCodeAlreadySubmitted      ErrorCode = "ADM_2004"
	ErrCodeReputationTooLow      ErrorCode = "ADM_2005"
	ErrCodeStakeTooLow           ErrorCode = "ADM_2006"
	ErrCodeBusy                  ErrorCode = "ADM_2007"

	// Pipeline errors (§7 "Pipeline")
	ErrCodeArtifactUnavailable ErrorCode = "PIPE_3001"
	ErrCodeAnalyzerTimeout     ErrorCode = "PIPE_3002"
	ErrCodeAnalyzerFailed      ErrorCode = "PIPE_3003"
	ErrCodeAllAnalyzersFailed  ErrorCode = "PIPE_3004"

	// Settlement errors (§7 "Settlement")
	ErrCodeLedgerTransient     ErrorCode = "SETTLE_4001"
	ErrCodeLedgerPermanent     ErrorCode = "SETTLE_4002"
	ErrCodeInconsistentSnapshot ErrorCode = "SETTLE_4003"
	ErrCodeNotFinalizable      ErrorCode = "SETTLE_4004"

	// Reputation errors (§7 "Reputation")
	ErrCodeUnknownEngine ErrorCode = "REP_5001"

	// Dispute errors (§6.1 "dispute")
	ErrCodeNotDisputable ErrorCode = "DISP_8001"
	ErrCodeWindowClosed  ErrorCode = "DISP_8002"

	// Resource / generic errors
	ErrCodeNotFound      ErrorCode = "RES_6001"
	ErrCodeAlreadyExists ErrorCode = "RES_6002"
	ErrCodeConflict      ErrorCode = "RES_6003"
	ErrCodeInternal      ErrorCode = "SVC_7001"
	ErrCodeDatabaseError ErrorCode = "SVC_7002"
	ErrCodeTimeout       ErrorCode = "SVC_7003"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Validation errors

func InvalidVerdict(verdict string) *ServiceError {
	return New(ErrCodeInvalidVerdict, "Invalid verdict", http.StatusBadRequest).
		WithDetails("verdict", verdict)
}

func ConfidenceOutOfRange(confidence float64) *ServiceError {
	return New(ErrCodeConfidenceOutOfRange, "Confidence must be in [0,1]", http.StatusBadRequest).
		WithDetails("confidence", confidence)
}

func InvalidArtifact(reason string) *ServiceError {
	return New(ErrCodeInvalidArtifact, "Invalid artifact", http.StatusBadRequest).
		WithDetails("reason", reason)
}

func InvalidBountySpec(field, reason string) *ServiceError {
	return New(ErrCodeInvalidBountySpec, "Invalid bounty spec", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// Admission errors

func BountyNotActive(bountyID string) *ServiceError {
	return New(ErrCodeBountyNotActive, "Bounty is not active", http.StatusConflict).
		WithDetails("bounty_id", bountyID)
}

func PastDeadline(bountyID string) *ServiceError {
	return New(ErrCodePastDeadline, "Bounty deadline has passed", http.StatusConflict).
		WithDetails("bounty_id", bountyID)
}

func ParticipantCapReached(bountyID string, cap int) *ServiceError {
	return New(ErrCodeParticipantCapReached, "Bounty participant cap reached", http.StatusConflict).
		WithDetails("bounty_id", bountyID).
		WithDetails("cap", cap)
}

func AlreadySubmitted(bountyID, engineID string) *ServiceError {
	return New(ErrCodeAlreadySubmitted, "Engine already submitted to this bounty", http.StatusConflict).
		WithDetails("bounty_id", bountyID).
		WithDetails("engine_id", engineID)
}

func ReputationTooLow(engineID string, required, actual float64) *ServiceError {
	return New(ErrCodeReputationTooLow, "Engine reputation below bounty minimum", http.StatusForbidden).
		WithDetails("engine_id", engineID).
		WithDetails("required", required).
		WithDetails("actual", actual)
}

func StakeTooLow(required, actual int64) *ServiceError {
	return New(ErrCodeStakeTooLow, "Stake below required minimum", http.StatusBadRequest).
		WithDetails("required", required).
		WithDetails("actual", actual)
}

func Busy(bountyID string) *ServiceError {
	return New(ErrCodeBusy, "Submission queue is full", http.StatusServiceUnavailable).
		WithDetails("bounty_id", bountyID)
}

// Pipeline errors

func ArtifactUnavailable(contentAddress string, err error) *ServiceError {
	return Wrap(ErrCodeArtifactUnavailable, "Artifact bytes unavailable after retries", http.StatusBadGateway, err).
		WithDetails("content_address", contentAddress)
}

func AnalyzerTimeout(analyzerID string) *ServiceError {
	return New(ErrCodeAnalyzerTimeout, "Analyzer exceeded its deadline", http.StatusGatewayTimeout).
		WithDetails("analyzer_id", analyzerID)
}

func AnalyzerFailed(analyzerID string, err error) *ServiceError {
	return Wrap(ErrCodeAnalyzerFailed, "Analyzer failed", http.StatusInternalServerError, err).
		WithDetails("analyzer_id", analyzerID)
}

func AllAnalyzersFailed(artifactRef string) *ServiceError {
	return New(ErrCodeAllAnalyzersFailed, "All required analyzers failed", http.StatusInternalServerError).
		WithDetails("artifact", artifactRef)
}

// Settlement errors

func LedgerTransient(bountyID string, err error) *ServiceError {
	return Wrap(ErrCodeLedgerTransient, "Ledger emission failed transiently", http.StatusServiceUnavailable, err).
		WithDetails("bounty_id", bountyID)
}

func LedgerPermanent(bountyID string, err error) *ServiceError {
	return Wrap(ErrCodeLedgerPermanent, "Ledger emission failed permanently", http.StatusInternalServerError, err).
		WithDetails("bounty_id", bountyID)
}

func InconsistentSnapshot(bountyID string) *ServiceError {
	return New(ErrCodeInconsistentSnapshot, "Reputation snapshot inconsistent with submission set", http.StatusInternalServerError).
		WithDetails("bounty_id", bountyID)
}

func NotFinalizable(bountyID string) *ServiceError {
	return New(ErrCodeNotFinalizable, "Bounty cannot be finalized in its current state", http.StatusConflict).
		WithDetails("bounty_id", bountyID)
}

// Reputation errors

func UnknownEngine(engineID string) *ServiceError {
	return New(ErrCodeUnknownEngine, "Unknown engine id", http.StatusOK).
		WithDetails("engine_id", engineID)
}

// Dispute errors

func NotDisputable(bountyID string) *ServiceError {
	return New(ErrCodeNotDisputable, "Bounty is not in a disputable state", http.StatusConflict).
		WithDetails("bounty_id", bountyID)
}

func WindowClosed(bountyID string) *ServiceError {
	return New(ErrCodeWindowClosed, "Dispute window has closed", http.StatusConflict).
		WithDetails("bounty_id", bountyID)
}

// Resource / generic errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "Resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *ServiceError {
	return New(ErrCodeAlreadyExists, "Resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeDatabaseError, "Database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Code returns the ErrorCode of an error, or "" if it is not a ServiceError.
func Code(err error) ErrorCode {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code
	}
	return ""
}
