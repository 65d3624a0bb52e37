package exchange

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/unifex/unifex/exchanges/request"
)

// Unified error kinds. Venue failures wrap exactly one kind; callers resolve
// them with errors.Is regardless of venue.
var (
	// ErrAuthentication covers credential, signature, nonce, timestamp and
	// permission failures
	ErrAuthentication = errors.New("authentication error")
	// ErrBadRequest covers parameter and content errors
	ErrBadRequest = errors.New("bad request")
	// ErrBadSymbol is an unknown trading pair
	ErrBadSymbol = errors.New("bad symbol")
	// ErrInvalidOrder is a venue rejection of the order shape
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderNotFound is a cancel or query for an unknown order
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientFunds is a balance shortfall
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRateLimitExceeded is a venue throttle response
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrExchangeNotAvailable covers 5xx and service-unavailable codes
	ErrExchangeNotAvailable = errors.New("exchange not available")
	// ErrExchangeError is the generic venue failure kind
	ErrExchangeError = errors.New("exchange error")

	// ErrMarketsNotLoaded is returned when market-dependent operations run
	// before LoadMarkets
	ErrMarketsNotLoaded = errors.New("markets not loaded")
	// ErrClosing is returned once CloseAllWs has begun
	ErrClosing = errors.New("exchange shutting down")
)

// APIError is a venue failure normalized onto a unified kind. Kind is
// exposed through Unwrap so errors.Is matches the taxonomy sentinel.
type APIError struct {
	Exchange   string
	Code       string
	Message    string
	HTTPStatus int
	Kind       error
	Raw        []byte
}

// Error implements the error interface in the "{venue} {code}: {message}"
// form, falling back to the HTTP form when no venue code exists
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s", e.Exchange, e.Code, e.Message)
	}
	if e.HTTPStatus != 0 && e.Message == "" {
		return fmt.Sprintf("%s HTTP %d: %s", e.Exchange, e.HTTPStatus, string(e.Raw))
	}
	return fmt.Sprintf("%s: %s", e.Exchange, e.Message)
}

// Unwrap exposes the unified kind
func (e *APIError) Unwrap() error {
	if e.Kind == nil {
		return ErrExchangeError
	}
	return e.Kind
}

// MapHTTPStatus returns the fallback unified kind for an HTTP status
func MapHTTPStatus(status int) error {
	switch {
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusNotFound:
		return ErrExchangeError
	case status == http.StatusTooManyRequests, status == http.StatusTeapot:
		return ErrRateLimitExceeded
	case status >= http.StatusInternalServerError:
		return ErrExchangeNotAvailable
	default:
		return ErrExchangeError
	}
}

// NewAPIError builds an APIError resolving the venue code through the
// driver's error table, falling back to the generic kind
func NewAPIError(venue, code, message string, status int, table map[string]error) *APIError {
	kind, ok := table[code]
	if !ok || kind == nil {
		kind = ErrExchangeError
	}
	return &APIError{
		Exchange:   venue,
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Kind:       kind,
	}
}

// ClassifyHTTPError normalizes a request-pipeline failure. When the error is
// a non-2xx response, bodyMapper (the driver's venue-specific mapper) gets
// the first try; anything it cannot map falls back to the HTTP status
// taxonomy. Transport failures and circuit-open pass through or map to
// availability.
func ClassifyHTTPError(venue string, err error, bodyMapper func(status int, body []byte) error) error {
	if err == nil {
		return nil
	}
	var herr *request.HTTPError
	if errors.As(err, &herr) {
		if bodyMapper != nil {
			if mapped := bodyMapper(herr.StatusCode, herr.Body); mapped != nil {
				return mapped
			}
		}
		return &APIError{
			Exchange:   venue,
			HTTPStatus: herr.StatusCode,
			Kind:       MapHTTPStatus(herr.StatusCode),
			Raw:        herr.Body,
		}
	}
	if errors.Is(err, request.ErrCircuitOpen) {
		return fmt.Errorf("%s: %w: %v", venue, ErrExchangeNotAvailable, err)
	}
	return err
}
