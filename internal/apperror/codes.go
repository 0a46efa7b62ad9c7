package apperror

// Code identifies a failure class. Codes are stable strings; they appear in
// logs, metrics attributes and JSON output.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// Provider (aggregator adapter) failures.
const (
	CodeProviderTimeout         Code = "PROVIDER_TIMEOUT"
	CodeProviderRateLimited     Code = "PROVIDER_RATE_LIMITED"
	CodeProviderError           Code = "PROVIDER_ERROR"
	CodeProviderClientError     Code = "PROVIDER_CLIENT_ERROR"
	CodeInvalidProviderResponse Code = "INVALID_PROVIDER_RESPONSE"
	CodeUnsupportedRequest      Code = "UNSUPPORTED_REQUEST"
	CodeCircuitOpen             Code = "CIRCUIT_OPEN"
)

// Router outcomes.
const (
	CodeNoQuoteAvailable Code = "NO_QUOTE_AVAILABLE"
	CodeInvalidQuote     Code = "INVALID_QUOTE"
)
