// Package models defines the standard API response envelope.
package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	StatusOK    APIStatus = "ok"
	StatusError APIStatus = "error"
)

// APIResponse is the standard envelope returned by every HTTP endpoint.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a success response with an optional result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Success: true, Result: result}
}

// SuccessWithMessage creates a success response with a message and payload.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Success: true, Message: message, Result: result}
}

// Error creates an error response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Success: false, Message: message}
}
