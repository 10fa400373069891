// Package errors provides standardized error handling for notification delivery.
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

const (
	ErrCodeNotificationSendFailed     ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeNotificationMasterInactive ErrorCode = "NOTIFICATION_MASTER_INACTIVE"
	ErrCodeRecipientUnreachable       ErrorCode = "RECIPIENT_UNREACHABLE"
	ErrCodeProviderRejected           ErrorCode = "PROVIDER_REJECTED"
	ErrCodeProviderUnavailable        ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeMissingBodyValues          ErrorCode = "MISSING_BODY_VALUES"

	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"
	ErrCodeWhatsappFieldConfig      ErrorCode = "WHATSAPP_FIELD_CONFIG_INVALID"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeExternalService  ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Reason is the operator-facing text stored as a queue row's failed reason.
func (e *StandardError) Reason() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationMasterInactiveError is raised when the WhatsApp alert linked
// to the event has been deactivated. It is never retried.
func NewNotificationMasterInactiveError(alertID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationMasterInactive,
		Message:   "Notification master inactive",
		Retryable: false,
		Metadata:  map[string]interface{}{"whatsappAlertId": alertID},
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientUnreachableError creates a non-retryable recipient error.
func NewRecipientUnreachableError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientUnreachable,
		Message:   "Recipient has no usable contact",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderRejectedError is returned for 4xx provider responses.
func NewProviderRejectedError(provider string, status int, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderRejected,
		Message:   fmt.Sprintf("Provider '%s' rejected the message", provider),
		Details:   fmt.Sprintf("status: %d, body: %s", status, body),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderUnavailableError is returned for 429 and 5xx provider responses.
func NewProviderUnavailableError(provider string, status int, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderUnavailable,
		Message:   fmt.Sprintf("Provider '%s' unavailable", provider),
		Details:   fmt.Sprintf("status: %d, body: %s", status, body),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingBodyValuesError creates a non-retryable template argument error.
func NewMissingBodyValuesError(expected, got int) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingBodyValues,
		Message:   fmt.Sprintf("Missing variable values for template's body, expected %d, got %d", expected, got),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found in registry",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateValidationFailedError creates a non-retryable template validation error.
func NewTemplateValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateValidationFailed,
		Message:   "Data validation failed for template",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWhatsappFieldConfigError reports a broken WhatsApp field layout.
func NewWhatsappFieldConfigError(alertID int64, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWhatsappFieldConfig,
		Message:   "WhatsApp field configuration is invalid",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"whatsappAlertId": alertID},
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard unwraps err to a *StandardError if one is in its chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsRetryable reports whether a delivery should be attempted again.
// Errors that are not StandardErrors count as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Retryable
	}
	return true
}

// Reason renders err for storage in failed_reason columns.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Reason()
	}
	return err.Error()
}

// Code returns the error code of err, or INTERNAL_ERROR.
func Code(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// GetRetryCount returns the recommended immediate retry count for an error code.
// Queue level retries are governed by the queue's max retries instead.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeProviderUnavailable,
		ErrCodeExternalService:
		return 3

	case ErrCodeTimeout:
		return 2

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "WHATSAPP_FIELD") || strings.Contains(codeStr, "BODY_VALUES"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "PROVIDER"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "RECIPIENT"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
