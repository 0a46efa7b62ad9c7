package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/fd1az/quote-router/internal/apperror"
)

// maxErrorBody bounds how much of a failed response body is kept as cause.
const maxErrorBody = 256

// StatusError classifies a provider response status. 2xx/3xx return nil.
func StatusError(provider string, statusCode int, body []byte) error {
	var code apperror.Code
	switch {
	case statusCode < http.StatusBadRequest:
		return nil
	case statusCode == http.StatusTooManyRequests:
		code = apperror.CodeProviderRateLimited
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusGatewayTimeout:
		code = apperror.CodeProviderTimeout
	case statusCode >= http.StatusInternalServerError:
		code = apperror.CodeProviderError
	default:
		code = apperror.CodeProviderClientError
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return apperror.Provider(code, provider, fmt.Errorf("status %d: %s", statusCode, body))
}

// TransportError classifies a failure that produced no response.
func TransportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Provider(apperror.CodeProviderTimeout, provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return apperror.Provider(apperror.CodeServiceUnavailable, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperror.Provider(apperror.CodeProviderTimeout, provider, err)
	}
	return apperror.Provider(apperror.CodeProviderError, provider, err)
}

// DecodeError reports an unparseable success body.
func DecodeError(provider string, err error) error {
	return apperror.Provider(apperror.CodeInvalidProviderResponse, provider, err)
}

// MissingField reports a success body without a required field.
func MissingField(provider, field string) error {
	return apperror.Provider(apperror.CodeInvalidProviderResponse, provider,
		fmt.Errorf("response has no %s", field))
}
