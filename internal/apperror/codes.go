package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
	CodeShutdown      Code = "SHUTDOWN"
)

// Market-data-proxy error codes
const (
	// WsSession errors
	CodeWsConnectFailed   Code = "WS_CONNECT_FAILED"
	CodeWsUpgradeRejected Code = "WS_UPGRADE_REJECTED"
	CodeWsReadFailed      Code = "WS_READ_FAILED"
	CodeWsWriteFailed     Code = "WS_WRITE_FAILED"
	CodeWsIdleTimeout     Code = "WS_IDLE_TIMEOUT"
	CodeWsClosed          Code = "WS_CLOSED"
	CodeWsSubscribeFailed Code = "WS_SUBSCRIBE_FAILED"

	// Parser / codec errors
	CodeParseMissingField Code = "PARSE_MISSING_FIELD"
	CodeParseBadNumber    Code = "PARSE_BAD_NUMBER"
	CodeFrameTooLarge     Code = "FRAME_TOO_LARGE"

	// REST fetcher errors
	CodeRestRequestFailed   Code = "REST_REQUEST_FAILED"
	CodeRestTimeout         Code = "REST_TIMEOUT"
	CodeRestBadResponse     Code = "REST_BAD_RESPONSE"
	CodeRestClientInitError Code = "REST_CLIENT_INIT_ERROR"

	// SAPI authentication errors
	CodeAuthKeyLoadFailed Code = "AUTH_KEY_LOAD_FAILED"
	CodeAuthSignFailed    Code = "AUTH_SIGN_FAILED"
	CodeAuthRejected      Code = "AUTH_REJECTED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
