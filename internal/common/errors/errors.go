// Package errors provides the standardized error type used by the form engine,
// the lookup gateway, the HTTP API and the lookup workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Form engine
	ErrCodeInvalidFormat       ErrorCode = "INVALID_FORMAT"
	ErrCodeSubmissionBlocked   ErrorCode = "SUBMISSION_BLOCKED"
	ErrCodeAddressLimitReached ErrorCode = "ADDRESS_LIMIT_REACHED"
	ErrCodeLastAddress         ErrorCode = "LAST_ADDRESS"
	ErrCodeAddressNotFound     ErrorCode = "ADDRESS_NOT_FOUND"
	ErrCodeInvalidField        ErrorCode = "INVALID_FIELD"
	ErrCodeFormNotFound        ErrorCode = "FORM_NOT_FOUND"
	ErrCodeFormClosed          ErrorCode = "FORM_CLOSED"
	ErrCodeFormLimitReached    ErrorCode = "FORM_LIMIT_REACHED"
	ErrCodeCustomerNotFound    ErrorCode = "CUSTOMER_NOT_FOUND"
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"

	// Lookup gateway
	ErrCodePANVerificationFailed ErrorCode = "PAN_VERIFICATION_FAILED"
	ErrCodePostcodeLookupFailed  ErrorCode = "POSTCODE_LOOKUP_FAILED"
	ErrCodeExternalService       ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeLookupTimeout         ErrorCode = "LOOKUP_TIMEOUT"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
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

// Is matches another *StandardError by code, so sentinel values work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns a copy of e carrying the given metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	cp := *e
	cp.Metadata = make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
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

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidFormatError reports a field value that fails its validator.
func NewInvalidFormatError(field, message string) *StandardError {
	return newError(ErrCodeInvalidFormat, message, fmt.Sprintf("field: %s", field), false)
}

// NewSubmissionBlockedError carries the full field error mapping of a failed submit.
func NewSubmissionBlockedError(fieldErrors map[string]string) *StandardError {
	err := newError(ErrCodeSubmissionBlocked, "Please correct the highlighted fields",
		fmt.Sprintf("%d field(s) invalid", len(fieldErrors)), false)
	copied := make(map[string]string, len(fieldErrors))
	for k, v := range fieldErrors {
		copied[k] = v
	}
	err.Metadata = map[string]interface{}{"errors": copied}
	return err
}

func NewAddressLimitError(limit int) *StandardError {
	return newError(ErrCodeAddressLimitReached,
		fmt.Sprintf("Maximum %d addresses allowed", limit), "", false)
}

func NewLastAddressError() *StandardError {
	return newError(ErrCodeLastAddress, "At least one address is required", "", false)
}

func NewAddressNotFoundError(position int) *StandardError {
	return newError(ErrCodeAddressNotFound, "Address not found",
		fmt.Sprintf("position: %d", position), false)
}

func NewInvalidFieldError(field string) *StandardError {
	return newError(ErrCodeInvalidField, "Unknown form field", fmt.Sprintf("field: %s", field), false)
}

func NewFormNotFoundError(formID string) *StandardError {
	return newError(ErrCodeFormNotFound, "Form not found", fmt.Sprintf("formId: %s", formID), false)
}

func NewFormClosedError() *StandardError {
	return newError(ErrCodeFormClosed, "Form is already closed", "", false)
}

func NewFormLimitError(limit int) *StandardError {
	return newError(ErrCodeFormLimitReached, "Too many open forms",
		fmt.Sprintf("limit: %d", limit), false)
}

func NewCustomerNotFoundError(customerID string) *StandardError {
	return newError(ErrCodeCustomerNotFound, "Customer not found",
		fmt.Sprintf("customerId: %s", customerID), false)
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request body", details, false)
}

// NewPANVerificationFailedError is a semantically unsuccessful PAN lookup. The
// message comes from the lookup service and is shown next to the PAN field.
func NewPANVerificationFailedError(message, pan string) *StandardError {
	if message == "" {
		message = "PAN verification failed"
	}
	err := newError(ErrCodePANVerificationFailed, message, "", false)
	if pan != "" {
		err.Metadata = map[string]interface{}{"panNumber": pan}
	}
	return err
}

// NewPostcodeLookupFailedError is a non-success postcode response.
func NewPostcodeLookupFailedError(postcode string) *StandardError {
	return newError(ErrCodePostcodeLookupFailed, "Invalid postcode",
		fmt.Sprintf("postcode: %s", postcode), false)
}

// NewExternalServiceError wraps a transport failure. The transport error text is
// the user-visible message.
func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, err.Error(),
		fmt.Sprintf("service: %s", service), true)
}

func NewLookupTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeLookupTimeout, err.Error(),
		fmt.Sprintf("service: %s", service), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 4. Error Conversion
// ==========================

// AsStandard normalizes any error into a *StandardError.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// CodeOf returns the code of err, or "" when err is nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsStandard(err).Code
}

// MessageOf returns the displayable message of err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Message
	}
	return err.Error()
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExternalService:
		return 3
	case ErrCodeLookupTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
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

// HTTPStatus maps an error code to the status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeSubmissionBlocked, ErrCodeAddressLimitReached, ErrCodeLastAddress,
		ErrCodeInvalidFormat, ErrCodePANVerificationFailed, ErrCodePostcodeLookupFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeAddressNotFound, ErrCodeFormNotFound, ErrCodeCustomerNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidField, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeFormClosed:
		return http.StatusConflict
	case ErrCodeFormLimitReached:
		return http.StatusTooManyRequests
	case ErrCodeExternalService:
		return http.StatusBadGateway
	case ErrCodeLookupTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
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
	case strings.Contains(codeStr, "PAN") || strings.Contains(codeStr, "POSTCODE") ||
		strings.Contains(codeStr, "LOOKUP") || strings.Contains(codeStr, "EXTERNAL"):
		return "LOOKUP"
	case strings.Contains(codeStr, "ADDRESS") || strings.Contains(codeStr, "FORM") ||
		strings.Contains(codeStr, "SUBMISSION"):
		return "FORM"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}
