package models

import "time"

const (
	EnvelopeSuccess = "success"
	EnvelopeError   = "error"
)

// Envelope wraps every API response body
type Envelope struct {
	Status       string      `json:"status"`
	Payload      interface{} `json:"payload,omitempty"`
	ErrorCode    int         `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Success wraps payload in a success envelope
func Success(payload interface{}) Envelope {
	return Envelope{Status: EnvelopeSuccess, Payload: payload}
}

// Failure builds an error envelope
func Failure(code int, message string) Envelope {
	return Envelope{Status: EnvelopeError, ErrorCode: code, ErrorMessage: message}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Store     string `json:"store"`
}

// ActivateResult is returned by survey activation
type ActivateResult struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"start_date"`
}

// IDResult carries the id of a touched record
type IDResult struct {
	ID string `json:"id"`
}

// SurveyWithResponses is a survey together with its collected data
type SurveyWithResponses struct {
	*Survey
	Responses []*Response `json:"responses"`
	Readings  []*Reading  `json:"readings"`
}

// RegisterResult is returned by installation registration
type RegisterResult struct {
	InstallationID int64 `json:"installation_id"`
}

// AttachResult is returned after a file is bound to an answer
type AttachResult struct {
	ResponseID string `json:"response_id"`
	InputID    int64  `json:"input_id"`
}
