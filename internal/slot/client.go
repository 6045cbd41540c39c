package slot

import (
	"context"

	"github.com/shopspring/decimal"
)

// LaunchRequest carries the decrypted payload of an outbound launch call.
type LaunchRequest struct {
	MemberAccount string
	GameUID       string
	CreditAmount  string
	CurrencyCode  string
	Language      string
	HomeURL       string
	Platform      string
	CallbackURL   string
}

// ProviderClient is the outbound side of the provider integration. The
// HTTP implementation lives in internal/providerapi; tests substitute a
// stub.
type ProviderClient interface {
	// LaunchGame posts the launch payload and returns the remote playable
	// URL. Transport failures surface as ErrProviderUnreachable; declared
	// remote errors surface as *ProviderError.
	LaunchGame(ctx context.Context, provider Provider, request LaunchRequest) (string, error)
	// SessionBalance queries the player's remaining remote balance, used
	// for the final reconciliation of transfer-mode providers.
	SessionBalance(ctx context.Context, provider Provider, memberAccount string) (decimal.Decimal, error)
}
