package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/pkg/wallet"
)

// Reconciler applies provider callbacks to the authoritative wallet
// ledger. Every money-moving callback runs as one database transaction
// under an exclusive lock on the user's wallet row: the debit or credit,
// its Transaction row, the session totals, and the applied-callback index
// entry commit together or not at all.
type Reconciler struct {
	store     Store
	ledger    *wallet.Ledger
	nowFn     func() time.Time
	freshness time.Duration
	logger    *zap.Logger
}

// NewReconciler wires a Reconciler. freshness bounds the accepted envelope
// timestamp skew in both directions.
func NewReconciler(store Store, ledger *wallet.Ledger, now func() time.Time, freshness time.Duration, logger *zap.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if freshness <= 0 {
		return nil, fmt.Errorf("%w: freshness window must be positive", ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		ledger:    ledger,
		nowFn:     now,
		freshness: freshness,
		logger:    logger,
	}, nil
}

// HandleCallback validates, deduplicates, and applies one inbound callback,
// returning the encrypted response envelope carrying the resulting balance.
func (reconciler *Reconciler) HandleCallback(ctx context.Context, providerCode string, envelope payload.Envelope) (payload.Envelope, error) {
	if err := envelope.Validate(); err != nil {
		return payload.Envelope{}, err
	}
	provider, err := reconciler.store.GetProviderByCode(ctx, providerCode)
	if err != nil {
		return payload.Envelope{}, err
	}
	if !provider.Active {
		return payload.Envelope{}, fmt.Errorf("%w: provider %s", ErrProviderInactive, provider.Code)
	}
	if envelope.AgencyUID != provider.AgencyUID {
		reconciler.logger.Error("agency uid mismatch",
			zap.String("provider", provider.Code),
			zap.String("agency_uid", envelope.AgencyUID))
		return payload.Envelope{}, fmt.Errorf("%w: agency uid mismatch", ErrAuthentication)
	}

	now := reconciler.nowFn().UTC()
	sentAt, err := envelope.Time()
	if err != nil {
		return payload.Envelope{}, err
	}
	if skew := now.Sub(sentAt); skew > reconciler.freshness || skew < -reconciler.freshness {
		return payload.Envelope{}, fmt.Errorf("%w: sent %s", ErrStaleRequest, sentAt.Format(time.RFC3339))
	}
	codec, err := payload.NewCodec(provider.CipherMode)
	if err != nil {
		return payload.Envelope{}, err
	}
	fields, err := codec.Decode(envelope.Payload, provider.Key())
	if err != nil {
		if errors.Is(err, payload.ErrDecryption) {
			reconciler.logger.Error("callback decryption failed",
				zap.String("provider", provider.Code),
				zap.Error(err))
			return payload.Envelope{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return payload.Envelope{}, err
	}
	request, err := parseCallbackRequest(fields)
	if err != nil {
		return payload.Envelope{}, err
	}

	userID, err := provider.ParseMemberAccount(request.MemberAccount)
	if err != nil {
		return payload.Envelope{}, err
	}
	exists, err := reconciler.store.UserExists(ctx, userID)
	if err != nil {
		return payload.Envelope{}, err
	}
	if !exists {
		return payload.Envelope{}, fmt.Errorf("%w: member account %q", ErrUnknownPlayer, request.MemberAccount)
	}

	balance, err := reconciler.apply(ctx, provider, userID, request, envelope.Nonce, now)
	if err != nil {
		return payload.Envelope{}, err
	}
	return reconciler.respond(codec, provider, balance, now)
}

// apply runs the transactional part of callback processing. The nonce is
// consumed inside the same transaction, so a callback that fails to apply
// leaves its nonce unconsumed and the provider's identical retry is not
// bounced as a replay. A concurrent duplicate that loses the insert race,
// whether on the applied-callback index or on the transaction reference,
// is resolved by re-reading the winner's record and replaying its balance.
func (reconciler *Reconciler) apply(ctx context.Context, provider Provider, userID wallet.UserID, request CallbackRequest, nonce string, now time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := reconciler.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if nonce != "" {
			nonceExpiry := now.Add(2 * reconciler.freshness).Unix()
			if err := txStore.ConsumeNonce(ctx, provider.ID, nonce, nonceExpiry); err != nil {
				return err
			}
		}
		applied, err := reconciler.applyInTx(ctx, txStore, provider, userID, request, now)
		if err != nil {
			return err
		}
		balance = applied
		return nil
	})
	if errors.Is(err, ErrDuplicateCallback) || errors.Is(err, wallet.ErrDuplicateTransaction) {
		record, lookupErr := reconciler.store.GetCallbackRecord(ctx, provider.ID, request.RemoteTransactionID)
		if lookupErr != nil {
			return decimal.Decimal{}, err
		}
		return record.BalanceAfter, nil
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	return balance, nil
}

func (reconciler *Reconciler) applyInTx(ctx context.Context, txStore Store, provider Provider, userID wallet.UserID, request CallbackRequest, now time.Time) (decimal.Decimal, error) {
	switch request.EventType {
	case EventBalanceQuery:
		// Read-only: allowed even without a live session.
		snapshot, err := txStore.GetWallet(ctx, userID)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return snapshot.RealBalance, nil
	case EventRollback:
		return reconciler.applyRollback(ctx, txStore, provider, userID, request, now)
	case EventSessionEnd:
		return reconciler.applySessionEnd(ctx, txStore, provider, userID, request, now)
	case EventBet, EventWin:
		return reconciler.applyWager(ctx, txStore, provider, userID, request, now)
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidEvent, request.EventType)
}

func (reconciler *Reconciler) applyWager(ctx context.Context, txStore Store, provider Provider, userID wallet.UserID, request CallbackRequest, now time.Time) (decimal.Decimal, error) {
	if record, err := txStore.GetCallbackRecord(ctx, provider.ID, request.RemoteTransactionID); err == nil {
		// Replay of an already applied callback: answer with the balance
		// computed the first time, do not reapply.
		return record.BalanceAfter, nil
	} else if !errors.Is(err, ErrCallbackNotFound) {
		return decimal.Decimal{}, err
	}

	game, err := txStore.GetGameByRemoteUID(ctx, provider.ID, request.RemoteGameUID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	session, err := txStore.GetActiveSession(ctx, userID, game.ID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !session.ActiveAt(now.Unix()) {
		return decimal.Decimal{}, fmt.Errorf("%w: session %s expired", ErrSessionNotFound, session.Token)
	}

	amount, err := wallet.NewAmount(request.Amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", payload.ErrPayloadFormat, err)
	}
	reference := provider.Code + referenceDelimiter + request.RemoteTransactionID

	var transaction wallet.Transaction
	switch request.EventType {
	case EventBet:
		transaction, err = reconciler.ledger.Debit(ctx, txStore, userID, amount, wallet.TransactionBet, reference)
		if err != nil {
			return decimal.Decimal{}, err
		}
		session.TotalBets = session.TotalBets.Add(amount.Decimal())
	case EventWin:
		transaction, err = reconciler.ledger.Credit(ctx, txStore, userID, amount, wallet.TransactionWin, reference)
		if err != nil {
			return decimal.Decimal{}, err
		}
		session.TotalWins = session.TotalWins.Add(amount.Decimal())
	}
	session.RoundsPlayed++
	if err := txStore.SaveSession(ctx, session); err != nil {
		return decimal.Decimal{}, err
	}
	if err := txStore.InsertCallbackRecord(ctx, CallbackRecord{
		ProviderID:          provider.ID,
		RemoteTransactionID: request.RemoteTransactionID,
		EventType:           request.EventType,
		UserID:              userID,
		SessionID:           session.ID,
		RoundID:             request.RoundID,
		Amount:              amount.Decimal(),
		BalanceAfter:        transaction.BalanceAfter,
		CreatedUnixUTC:      now.Unix(),
	}); err != nil {
		return decimal.Decimal{}, err
	}
	return transaction.BalanceAfter, nil
}

// applyRollback reverses a previously applied bet or win identified by its
// remote transaction id, restoring both the wallet balance and the running
// totals of the session the original callback was applied to. Rolling back
// an already rolled back or never applied transaction is a no-op that
// answers with the current balance.
func (reconciler *Reconciler) applyRollback(ctx context.Context, txStore Store, provider Provider, userID wallet.UserID, request CallbackRequest, now time.Time) (decimal.Decimal, error) {
	original, err := txStore.GetCallbackRecord(ctx, provider.ID, request.RemoteTransactionID)
	if errors.Is(err, ErrCallbackNotFound) {
		snapshot, err := txStore.GetWalletForUpdate(ctx, userID)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return snapshot.RealBalance, nil
	}
	if err != nil {
		return decimal.Decimal{}, err
	}
	if original.RolledBack {
		snapshot, err := txStore.GetWallet(ctx, userID)
		if err != nil {
			return decimal.Decimal{}, err
		}
		return snapshot.RealBalance, nil
	}

	amount, err := wallet.NewAmount(original.Amount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	reference := provider.Code + referenceDelimiter + request.RemoteTransactionID + referenceDelimiter + string(EventRollback)

	var transaction wallet.Transaction
	switch original.EventType {
	case EventBet:
		transaction, err = reconciler.ledger.Credit(ctx, txStore, userID, amount, wallet.TransactionRollback, reference)
	case EventWin:
		transaction, err = reconciler.ledger.Debit(ctx, txStore, userID, amount, wallet.TransactionRollback, reference)
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: cannot roll back %s", ErrInvalidEvent, original.EventType)
	}
	if err != nil {
		return decimal.Decimal{}, err
	}

	session, err := txStore.GetSession(ctx, original.SessionID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	switch original.EventType {
	case EventBet:
		session.TotalBets = session.TotalBets.Sub(original.Amount)
	case EventWin:
		session.TotalWins = session.TotalWins.Sub(original.Amount)
	}
	if session.RoundsPlayed > 0 {
		session.RoundsPlayed--
	}
	if err := txStore.SaveSession(ctx, session); err != nil {
		return decimal.Decimal{}, err
	}
	if err := txStore.MarkCallbackRolledBack(ctx, provider.ID, request.RemoteTransactionID); err != nil {
		return decimal.Decimal{}, err
	}
	return transaction.BalanceAfter, nil
}

func (reconciler *Reconciler) applySessionEnd(ctx context.Context, txStore Store, provider Provider, userID wallet.UserID, request CallbackRequest, now time.Time) (decimal.Decimal, error) {
	if request.RemoteGameUID != "" {
		if game, err := txStore.GetGameByRemoteUID(ctx, provider.ID, request.RemoteGameUID); err == nil {
			if _, err := txStore.EndActiveSessions(ctx, userID, game.ID, SessionEnded, now.Unix()); err != nil {
				return decimal.Decimal{}, err
			}
		} else if !errors.Is(err, ErrGameNotFound) {
			return decimal.Decimal{}, err
		}
	}
	snapshot, err := txStore.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return snapshot.RealBalance, nil
}

func (reconciler *Reconciler) respond(codec *payload.Codec, provider Provider, balance decimal.Decimal, now time.Time) (payload.Envelope, error) {
	responseFields := payload.Fields{
		{Key: fieldCreditAmount, Value: balance.StringFixed(2)},
		{Key: fieldTimestamp, Value: fmt.Sprintf("%d", now.UnixMilli())},
	}
	encoded, err := codec.Encode(responseFields, provider.Key())
	if err != nil {
		return payload.Envelope{}, err
	}
	return payload.NewEnvelope(provider.AgencyUID, now, encoded), nil
}
