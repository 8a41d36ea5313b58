package dingtalk

import "fmt"

// Error codes reported in tool payloads.
const (
	CodeDefault      = "DINGTALK_ERROR"
	CodeTokenMissing = "TOKEN_MISSING"
	CodeHTTP         = "HTTP_ERROR"
	CodeUnknown      = "UNKNOWN_ERROR"
	CodeCircuitOpen  = "CIRCUIT_OPEN"
	CodeValidation   = "VALIDATION_ERROR"
)

// APIError is a failed DingTalk API call. Code is either the platform's
// errcode or one of the Code* constants.
type APIError struct {
	Message string
	Code    string
	Details string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *APIError) ErrorCode() string {
	if e.Code == "" {
		return CodeDefault
	}
	return e.Code
}

func (e *APIError) ErrorDetails() map[string]any {
	if e.Details == "" {
		return nil
	}
	return map[string]any{"response": e.Details}
}

// AuthError is a failure to obtain an access token.
type AuthError struct {
	APIError
}

func newAuthError(code, message, details string) *AuthError {
	return &AuthError{APIError{Message: message, Code: code, Details: details}}
}

// ValidationError rejects tool input before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) ErrorCode() string { return CodeValidation }

func (e *ValidationError) ErrorDetails() map[string]any {
	return map[string]any{"field": e.Field}
}
