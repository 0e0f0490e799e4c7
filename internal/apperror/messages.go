package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",
	CodeShutdown:      "Cooperative shutdown",

	// WsSession errors
	CodeWsConnectFailed:   "Failed to connect to WebSocket endpoint",
	CodeWsUpgradeRejected: "WebSocket upgrade handshake rejected",
	CodeWsReadFailed:      "Failed to read WebSocket frame",
	CodeWsWriteFailed:     "Failed to write WebSocket frame",
	CodeWsIdleTimeout:     "Session exceeded idle payload threshold",
	CodeWsClosed:          "WebSocket session closed",
	CodeWsSubscribeFailed: "Failed to send subscribe payload",

	// Parser / codec errors
	CodeParseMissingField: "Required field missing from payload",
	CodeParseBadNumber:    "Numeric field could not be parsed",
	CodeFrameTooLarge:     "Encoded frame exceeds size limit",

	// REST fetcher errors
	CodeRestRequestFailed:   "REST request failed",
	CodeRestTimeout:         "REST request timed out",
	CodeRestBadResponse:     "REST response could not be decoded",
	CodeRestClientInitError: "Failed to construct REST HTTP client",

	// SAPI authentication errors
	CodeAuthKeyLoadFailed: "Failed to load Ed25519 private key",
	CodeAuthSignFailed:    "Failed to sign SAPI request",
	CodeAuthRejected:      "SAPI request rejected (401/403)",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
