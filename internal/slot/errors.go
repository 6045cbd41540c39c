package slot

import (
	"errors"
	"fmt"
)

// Domain-level error values for the slot integration flow. Callback errors
// are mapped to the remote protocol's code table at the HTTP boundary so
// the provider's retry logic can distinguish permanent rejections from
// transient failures.
var (
	ErrProviderNotFound      = errors.New("provider not found")
	ErrProviderInactive      = errors.New("provider inactive")
	ErrProviderUnreachable   = errors.New("provider unreachable")
	ErrAuthentication        = errors.New("callback authentication failed")
	ErrStaleRequest          = errors.New("request timestamp outside freshness window")
	ErrNonceConsumed         = errors.New("nonce already consumed")
	ErrUnknownPlayer         = errors.New("unknown player")
	ErrGameNotFound          = errors.New("game not found")
	ErrSessionNotFound       = errors.New("no active session")
	ErrCallbackNotFound      = errors.New("callback record not found")
	ErrDuplicateCallback     = errors.New("duplicate remote transaction id")
	ErrDemoUnsupported       = errors.New("demo mode not supported by provider")
	ErrInvalidProviderConfig = errors.New("invalid provider config")
	ErrInvalidSession        = errors.New("invalid session")
	ErrInvalidEvent          = errors.New("invalid event type")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
)

// ProviderError carries a business error the remote provider declared in a
// launch response. Known codes translate through the closed enumeration;
// unknown codes pass through generically.
type ProviderError struct {
	Code    int
	Message string
}

// Error returns the formatted remote error.
func (providerError *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", providerError.Code, providerError.Message)
}
