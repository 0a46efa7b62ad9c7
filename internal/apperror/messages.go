package apperror

var messages = map[Code]string{
	CodeInvalidInput:       "Invalid quote request",
	CodeConfigurationError: "Configuration error",
	CodeServiceUnavailable: "Call abandoned before completion",
	CodeUnknownError:       "An unknown error occurred",

	CodeProviderTimeout:         "Quote provider did not respond in time",
	CodeProviderRateLimited:     "Quote provider rate limit exceeded",
	CodeProviderError:           "Quote provider failed",
	CodeProviderClientError:     "Quote provider rejected the request",
	CodeInvalidProviderResponse: "Quote provider returned an invalid response",
	CodeUnsupportedRequest:      "Quote provider does not support this request",
	CodeCircuitOpen:             "Circuit breaker is open",

	CodeNoQuoteAvailable: "Temporarily unable to price this trade",
	CodeInvalidQuote:     "Invalid quote data",
}

// Message returns the human-readable text for code, or the code itself.
func Message(code Code) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return string(code)
}
