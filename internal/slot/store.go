package slot

import (
	"context"

	"github.com/playnexus/slotbridge/pkg/wallet"
)

// Store is the persistence contract for the slot integration flow. It
// embeds the wallet ledger contract so a single transaction-scoped Store
// covers wallet, session, and callback-index writes; WithTx hands such a
// scope to fn and commits or rolls back as a unit.
type Store interface {
	wallet.Store

	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetProviderByCode(ctx context.Context, code string) (Provider, error)
	GetProviderByID(ctx context.Context, providerID int64) (Provider, error)
	UpsertProvider(ctx context.Context, provider Provider) (Provider, error)

	GetGame(ctx context.Context, gameID int64) (Game, error)
	GetGameByRemoteUID(ctx context.Context, providerID int64, remoteGameUID string) (Game, error)
	UpsertGame(ctx context.Context, game Game) (Game, error)

	UserExists(ctx context.Context, userID wallet.UserID) (bool, error)

	CreateSession(ctx context.Context, session Session) (Session, error)
	SaveSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, sessionID int64) (Session, error)
	GetActiveSession(ctx context.Context, userID wallet.UserID, gameID int64) (Session, error)
	EndActiveSessions(ctx context.Context, userID wallet.UserID, gameID int64, status SessionStatus, endedAtUnixUTC int64) (int64, error)
	ListExpiredSessions(ctx context.Context, nowUnixUTC int64, limit int) ([]Session, error)

	GetCallbackRecord(ctx context.Context, providerID int64, remoteTransactionID string) (CallbackRecord, error)
	InsertCallbackRecord(ctx context.Context, record CallbackRecord) error
	MarkCallbackRolledBack(ctx context.Context, providerID int64, remoteTransactionID string) error

	ConsumeNonce(ctx context.Context, providerID int64, nonce string, expiresAtUnixUTC int64) error
	PurgeExpiredNonces(ctx context.Context, nowUnixUTC int64) (int64, error)
}
