package slot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/playnexus/slotbridge/pkg/wallet"
)

// LaunchConfig carries the platform-side constants of every launch payload.
type LaunchConfig struct {
	CallbackBaseURL string
	HomeURL         string
	CurrencyCode    string
	Language        string
	Platform        string
}

// Validate checks the launch configuration.
func (config LaunchConfig) Validate() error {
	if strings.TrimSpace(config.CallbackBaseURL) == "" {
		return fmt.Errorf("%w: callback base url is required", ErrInvalidServiceConfig)
	}
	if strings.TrimSpace(config.CurrencyCode) == "" {
		return fmt.Errorf("%w: currency code is required", ErrInvalidServiceConfig)
	}
	return nil
}

// Launcher resolves a (user, game) pair into a remote launch URL and opens
// the local session that scopes subsequent callbacks. The launch call
// itself never mutates the ledger: until the provider accepts, the flow is
// side-effect free.
type Launcher struct {
	store   Store
	client  ProviderClient
	config  LaunchConfig
	nowFn   func() time.Time
	tokenFn func() string
	logger  *zap.Logger
}

// NewLauncher wires a Launcher.
func NewLauncher(store Store, client ProviderClient, config LaunchConfig, now func() time.Time, logger *zap.Logger) (*Launcher, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: provider client dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		store:   store,
		client:  client,
		config:  config,
		nowFn:   now,
		tokenFn: uuid.NewString,
		logger:  logger,
	}, nil
}

// LaunchResult is the outcome of a successful launch.
type LaunchResult struct {
	Session   Session
	LaunchURL string
}

// Launch turns a launch request into a remote playable URL. A prior active
// session for the same (user, game) pair is marked ended before the fresh
// session is created, so callbacks can never double-credit through an
// orphaned duplicate.
func (launcher *Launcher) Launch(ctx context.Context, userID wallet.UserID, gameID int64, demo bool) (LaunchResult, error) {
	game, err := launcher.store.GetGame(ctx, gameID)
	if err != nil {
		return LaunchResult{}, err
	}
	if !game.Active {
		return LaunchResult{}, fmt.Errorf("%w: game %d disabled", ErrProviderInactive, game.ID)
	}
	provider, err := launcher.store.GetProviderByID(ctx, game.ProviderID)
	if err != nil {
		return LaunchResult{}, err
	}
	if !provider.Active {
		return LaunchResult{}, fmt.Errorf("%w: provider %s disabled", ErrProviderInactive, provider.Code)
	}
	if demo && !provider.WalletModes.Demo {
		return LaunchResult{}, fmt.Errorf("%w: provider %s", ErrDemoUnsupported, provider.Code)
	}

	memberAccount := provider.MemberAccount(userID)
	snapshot, err := launcher.store.GetWallet(ctx, userID)
	if err != nil {
		return LaunchResult{}, err
	}
	creditAmount := snapshot.RealBalance.StringFixed(2)

	launchURL, err := launcher.client.LaunchGame(ctx, provider, LaunchRequest{
		MemberAccount: memberAccount,
		GameUID:       game.RemoteGameUID,
		CreditAmount:  creditAmount,
		CurrencyCode:  launcher.config.CurrencyCode,
		Language:      launcher.config.Language,
		HomeURL:       launcher.config.HomeURL,
		Platform:      launcher.config.Platform,
		CallbackURL:   launcher.callbackURL(provider),
	})
	if err != nil {
		launcher.logger.Warn("launch call failed",
			zap.String("provider", provider.Code),
			zap.String("member_account", memberAccount),
			zap.Error(err))
		return LaunchResult{}, err
	}

	now := launcher.nowFn().UTC()
	session := Session{
		Token:            launcher.tokenFn(),
		UserID:           userID,
		GameID:           game.ID,
		ProviderID:       provider.ID,
		LaunchURL:        launchURL,
		Status:           SessionActive,
		InitialBalance:   snapshot.RealBalance,
		Demo:             demo,
		ExpiresAtUnixUTC: now.Add(provider.SessionTimeout).Unix(),
		CreatedUnixUTC:   now.Unix(),
	}
	err = launcher.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		superseded, err := txStore.EndActiveSessions(ctx, userID, game.ID, SessionEnded, now.Unix())
		if err != nil {
			return err
		}
		if superseded > 0 {
			launcher.logger.Info("superseded prior session",
				zap.String("provider", provider.Code),
				zap.Int64("user_id", userID.Int64()),
				zap.Int64("game_id", game.ID),
				zap.Int64("count", superseded))
		}
		created, err := txStore.CreateSession(ctx, session)
		if err != nil {
			return err
		}
		session = created
		return nil
	})
	if err != nil {
		return LaunchResult{}, err
	}
	return LaunchResult{Session: session, LaunchURL: launchURL}, nil
}

func (launcher *Launcher) callbackURL(provider Provider) string {
	base := strings.TrimRight(launcher.config.CallbackBaseURL, "/")
	return base + callbackPathPrefix + provider.Code + callbackPathSuffix
}
