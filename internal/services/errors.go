// Package services holds the survey lifecycle, response intake, attachment
// merge and installation registration logic between handlers and the store.
package services

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable numeric code clients switch on
type ErrorCode int

const (
	CodeInvalidRequest      ErrorCode = 10
	CodeUnauthorized        ErrorCode = 11
	CodeSurveyNotFound      ErrorCode = 12
	CodeSaveFailed          ErrorCode = 13
	CodeSurveyClosed        ErrorCode = 14
	CodeResponseNotFound    ErrorCode = 15
	CodeInputNotFound       ErrorCode = 16
	CodeFileOpenFailed      ErrorCode = 17
	CodeInternal            ErrorCode = 18
	CodePlaceholderNotFound ErrorCode = 19
)

var codeMessages = map[ErrorCode]string{
	CodeInvalidRequest:      "invalid request",
	CodeUnauthorized:        "unauthorized",
	CodeSurveyNotFound:      "survey not found",
	CodeSaveFailed:          "save failed",
	CodeSurveyClosed:        "survey is closed",
	CodeResponseNotFound:    "response not found",
	CodeInputNotFound:       "input not found",
	CodeFileOpenFailed:      "file open failed",
	CodeInternal:            "internal error",
	CodePlaceholderNotFound: "placeholder not found",
}

// Message returns the default message for c
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return codeMessages[CodeInternal]
}

// ServiceError represents a service layer error
type ServiceError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// NewServiceError creates a ServiceError; an empty message uses the code's default
func NewServiceError(code ErrorCode, message string) *ServiceError {
	if message == "" {
		message = code.Message()
	}
	return &ServiceError{Code: code, Message: message}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code ErrorCode, message string, details map[string]interface{}) *ServiceError {
	e := NewServiceError(code, message)
	e.Details = details
	return e
}

func wrapError(code ErrorCode, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: code.Message(), cause: cause}
}

// AsServiceError extracts a ServiceError from err's chain
func AsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
