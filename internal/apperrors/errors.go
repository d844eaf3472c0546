package apperrors

import "errors"

type ErrorCode string

// Generic request/infrastructure codes.
const (
	ErrorCodeInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrorCodeConflict        ErrorCode = "CONFLICT"
	ErrorCodeRateLimited     ErrorCode = "RATE_LIMITED"
)

// Codes surfaced when a HEOS device call fails. These carry the core error
// taxonomy across the HTTP boundary.
const (
	ErrorCodeHeosTimeout       ErrorCode = "HEOS_TIMEOUT"
	ErrorCodeHeosUnreachable   ErrorCode = "HEOS_UNREACHABLE"
	ErrorCodeHeosRejected      ErrorCode = "HEOS_REJECTED"
	ErrorCodeHeosBusy          ErrorCode = "HEOS_BUSY"
	ErrorCodeHeosProtocol      ErrorCode = "HEOS_PROTOCOL_ERROR"
	ErrorCodeHeosRefreshFailed ErrorCode = "HEOS_REFRESH_FAILED"
)

// Resource-specific codes.
const (
	ErrorCodePlayerNotFound    ErrorCode = "PLAYER_NOT_FOUND"
	ErrorCodeGroupNotFound     ErrorCode = "GROUP_NOT_FOUND"
	ErrorCodeGroupInvalid      ErrorCode = "GROUP_INVALID"
	ErrorCodeSourceNotFound    ErrorCode = "SOURCE_NOT_FOUND"
	ErrorCodeQueueItemNotFound ErrorCode = "QUEUE_ITEM_NOT_FOUND"
	ErrorCodeRoutineNotFound   ErrorCode = "ROUTINE_NOT_FOUND"
	ErrorCodeInvalidSchedule   ErrorCode = "INVALID_SCHEDULE"
	ErrorCodeInvalidAction     ErrorCode = "INVALID_ACTION"
	ErrorCodeSettingNotFound   ErrorCode = "SETTING_NOT_FOUND"
	ErrorCodeEventNotFound     ErrorCode = "EVENT_NOT_FOUND"
)

// Account, auth, and hub lifecycle codes.
const (
	ErrorCodeAccountAuthFailed  ErrorCode = "ACCOUNT_AUTH_FAILED"
	ErrorCodeAccountSignedOut   ErrorCode = "ACCOUNT_SIGNED_OUT"
	ErrorCodeAuthPairingExpired ErrorCode = "AUTH_PAIRING_EXPIRED"
	ErrorCodeAuthPairingInvalid ErrorCode = "AUTH_PAIRING_INVALID"
	ErrorCodeAuthTokenExpired   ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid   ErrorCode = "AUTH_TOKEN_INVALID"
	ErrorCodeDiscoveryFailed    ErrorCode = "DISCOVERY_FAILED"
	ErrorCodeNotConfigured      ErrorCode = "HUB_NOT_CONFIGURED"
)

// ErrorType is the coarse category exposed in the error envelope. Clients
// branch on it before looking at the finer-grained code.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPIError       ErrorType = "api_error"
	ErrorTypeAuthError      ErrorType = "authentication_error"
	ErrorTypeUpstreamError  ErrorType = "upstream_error"
)

// Remediation tells the client how to recover from an error.
type Remediation struct {
	Action     string `json:"action"`
	Endpoint   string `json:"endpoint,omitempty"`
	UserAction string `json:"user_action,omitempty"`
}

// ErrorBody is the serialized error payload:
// {"type": "invalid_request_error", "code": "NOT_FOUND", "message": "..."}.
type ErrorBody struct {
	Type        ErrorType      `json:"type"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Remediation *Remediation   `json:"remediation,omitempty"`
}

// AppError is the error type every HTTP handler resolves to.
type AppError struct {
	Code        ErrorCode
	Message     string
	StatusCode  int
	Details     map[string]any
	Remediation *Remediation
}

func (err *AppError) Error() string { return err.Message }

// ErrorBody returns the wire form of the error.
func (err *AppError) ErrorBody() ErrorBody {
	return ErrorBody{
		Type:        typeForStatus(err.StatusCode),
		Code:        string(err.Code),
		Message:     err.Message,
		Details:     err.Details,
		Remediation: err.Remediation,
	}
}

func typeForStatus(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuthError
	case status >= 400 && status < 500:
		return ErrorTypeInvalidRequest
	case status == 502 || status == 503 || status == 504:
		return ErrorTypeUpstreamError
	default:
		return ErrorTypeAPIError
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any, remediation *Remediation) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		Details:     details,
		Remediation: remediation,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details, nil)
}

// NewUnauthorizedError defaults to the generic UNAUTHORIZED code; pass a
// specific auth code to override it.
func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, nil, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

// NewNotFoundResource builds a NOT_FOUND error naming the resource kind and,
// when known, the missing id.
func NewNotFoundResource(resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{"resource": resource}
	if id != "" {
		message += ": " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, 404, details, nil)
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, 409, details, nil)
}

func NewRateLimitError(message string) *AppError {
	return NewAppError(ErrorCodeRateLimited, message, 429, nil, nil)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil, nil)
}

// EnsureAppError resolves any error to an AppError. Unrecognized errors
// become an opaque 500 so internal detail stays out of responses.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}
