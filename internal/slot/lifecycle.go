package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playnexus/slotbridge/pkg/wallet"
)

// Sweeper expires idle sessions and settles their final balances. It runs
// concurrently with callback processing and relies on the same per-user
// wallet-row locking discipline: a session is never mutated outside a
// transaction holding its owner's wallet lock.
type Sweeper struct {
	store     Store
	client    ProviderClient
	ledger    *wallet.Ledger
	nowFn     func() time.Time
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewSweeper wires a Sweeper.
func NewSweeper(store Store, client ProviderClient, ledger *wallet.Ledger, now func() time.Time, interval time.Duration, batchSize int, logger *zap.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: provider client dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: sweep interval must be positive", ErrInvalidServiceConfig)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:     store,
		client:    client,
		ledger:    ledger,
		nowFn:     now,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (sweeper *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			expired, err := sweeper.SweepOnce(ctx)
			if err != nil {
				sweeper.logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				sweeper.logger.Info("session sweep", zap.Int("expired", expired))
			}
		}
	}
}

// SweepOnce expires one batch of overdue sessions and purges stale nonce
// records. It returns the number of sessions transitioned.
func (sweeper *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := sweeper.nowFn().UTC()
	sessions, err := sweeper.store.ListExpiredSessions(ctx, now.Unix(), sweeper.batchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, session := range sessions {
		if err := sweeper.expireSession(ctx, session, now); err != nil {
			sweeper.logger.Warn("session expiry skipped",
				zap.String("session", session.Token),
				zap.Error(err))
			continue
		}
		expired++
	}
	if _, err := sweeper.store.PurgeExpiredNonces(ctx, now.Unix()); err != nil {
		sweeper.logger.Warn("nonce purge failed", zap.Error(err))
	}
	return expired, nil
}

// expireSession closes one overdue session. For transfer-mode providers
// the remaining remote balance is queried first and settled back into the
// wallet inside the same transaction that closes the session; a failed
// remote query leaves the session untouched for the next sweep.
func (sweeper *Sweeper) expireSession(ctx context.Context, session Session, now time.Time) error {
	provider, err := sweeper.store.GetProviderByID(ctx, session.ProviderID)
	if err != nil {
		return err
	}

	settlement := decimal.Zero
	if provider.WalletModes.Transfer && !session.Demo {
		remote, err := sweeper.client.SessionBalance(ctx, provider, provider.MemberAccount(session.UserID))
		if err != nil {
			return err
		}
		settlement = remote
	}

	return sweeper.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if _, err := txStore.GetWalletForUpdate(ctx, session.UserID); err != nil {
			return err
		}
		current, err := txStore.GetSession(ctx, session.ID)
		if err != nil {
			return err
		}
		if current.Status != SessionActive {
			// A concurrent callback or launch already closed it.
			return nil
		}
		current.Status = SessionExpired
		current.EndedAtUnixUTC = now.Unix()
		if err := txStore.SaveSession(ctx, current); err != nil {
			return err
		}
		if settlement.IsPositive() {
			amount, err := wallet.NewAmount(settlement)
			if err != nil {
				return err
			}
			reference := referenceSettle + referenceDelimiter + current.Token
			if _, err := sweeper.ledger.Credit(ctx, txStore, current.UserID, amount, wallet.TransactionSettlement, reference); err != nil {
				return err
			}
		}
		return nil
	})
}
