// Package errors provides standardized error handling for the QMS workers and
// their BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Routing and dispatch errors.
const (
	ErrCodeClassificationAmbiguous ErrorCode = "CLASSIFICATION_AMBIGUOUS"
	ErrCodeInvalidAction           ErrorCode = "INVALID_ACTION"
	ErrCodeMissingIdentifier       ErrorCode = "MISSING_IDENTIFIER"
	ErrCodeInvalidInput            ErrorCode = "INVALID_INPUT"
)

// Storage errors.
const (
	ErrCodeStorageFailure           ErrorCode = "STORAGE_FAILURE"
	ErrCodeRecordNotFound           ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeMigrationFailed          ErrorCode = "MIGRATION_FAILED"
)

// Knowledge errors.
const (
	ErrCodeKnowledgeRetrievalFailed ErrorCode = "KNOWLEDGE_RETRIEVAL_FAILED"
	ErrCodeReasoningFailed          ErrorCode = "REASONING_FAILED"
	ErrCodeReasoningTimeout         ErrorCode = "REASONING_TIMEOUT"
)

// Side channel errors.
const (
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeCacheFailure           ErrorCode = "CACHE_FAILURE"
)

// Generic errors.
const (
	ErrCodeBusinessRule    ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNotFound        ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAuthentication  ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error. Message is safe to
// show to callers; Details and Cause are for logs only.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// As extracts a StandardError from an error chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewClassificationAmbiguousError is returned when no action can be resolved
// for the classified intent.
func NewClassificationAmbiguousError(details string) *StandardError {
	return newError(ErrCodeClassificationAmbiguous,
		"could not determine specific action", details, false, nil)
}

// NewInvalidActionError flags an action that does not belong to the intent.
func NewInvalidActionError(action, queryType string) *StandardError {
	return newError(ErrCodeInvalidAction,
		fmt.Sprintf("invalid action %q for %s", action, queryType),
		fmt.Sprintf("action: %s, queryType: %s", action, queryType), false, nil)
}

// NewMissingIdentifierError is returned before any storage call when an action
// needs a case identifier the text did not carry.
func NewMissingIdentifierError(entity string) *StandardError {
	return newError(ErrCodeMissingIdentifier,
		fmt.Sprintf("%s id is required", entity),
		fmt.Sprintf("entityType: %s", entity), false, nil)
}

// NewInvalidInputError covers malformed caller input.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "invalid input", details, false, nil)
}

// NewStorageFailureError hides the backend message from callers.
func NewStorageFailureError(operation string, err error) *StandardError {
	return newError(ErrCodeStorageFailure, "storage operation failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

// NewRecordNotFoundError is returned when a write targets a missing record.
func NewRecordNotFoundError(entity, id string) *StandardError {
	return newError(ErrCodeRecordNotFound,
		fmt.Sprintf("%s %s not found", entity, id),
		fmt.Sprintf("entityType: %s, id: %s", entity, id), false, nil)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "database connection error", err.Error(), true, err)
}

// NewMigrationFailedError wraps schema migration failures.
func NewMigrationFailedError(err error) *StandardError {
	return newError(ErrCodeMigrationFailed, "schema migration failed", err.Error(), false, err)
}

// NewKnowledgeRetrievalFailedError wraps search backend failures.
func NewKnowledgeRetrievalFailedError(err error) *StandardError {
	return newError(ErrCodeKnowledgeRetrievalFailed, "knowledge retrieval failed", err.Error(), true, err)
}

// NewReasoningFailedError wraps language model failures.
func NewReasoningFailedError(err error) *StandardError {
	return newError(ErrCodeReasoningFailed, "answer generation failed", err.Error(), true, err)
}

// NewReasoningTimeoutError is returned when the model call exceeds its deadline.
func NewReasoningTimeoutError(err error) *StandardError {
	return newError(ErrCodeReasoningTimeout, "answer generation timed out", err.Error(), true, err)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "notification send failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

// NewCacheFailureError is only ever logged; cache misses never fail a request.
func NewCacheFailureError(err error) *StandardError {
	return newError(ErrCodeCacheFailure, "cache operation failed", err.Error(), true, err)
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService,
		fmt.Sprintf("External service '%s' error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false, nil)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorageFailure,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeKnowledgeRetrievalFailed,
		ErrCodeReasoningFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeReasoningTimeout, ErrCodeTimeout:
		return 2

	case ErrCodeCacheFailure:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
// BPMN error codes are identical to the internal codes.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CLASSIFICATION") || strings.Contains(codeStr, "ACTION") ||
		strings.Contains(codeStr, "IDENTIFIER"):
		return "ROUTING"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "RECORD") ||
		strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "MIGRATION"):
		return "DATABASE"
	case strings.Contains(codeStr, "KNOWLEDGE") || strings.Contains(codeStr, "REASONING"):
		return "KNOWLEDGE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
