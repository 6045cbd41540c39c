// Package gormstore persists the integration domain through GORM, with
// sqlite for development and tests and postgres in production.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/internal/slot"
	"github.com/playnexus/slotbridge/pkg/wallet"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore  = "store"
	errorSubjectWallet   = "wallet"
	errorSubjectTxn      = "transaction"
	errorSubjectProvider = "provider"
	errorSubjectGame     = "game"
	errorSubjectUser     = "user"
	errorSubjectSession  = "session"
	errorSubjectCallback = "callback"
	errorSubjectNonce    = "nonce"

	errorCodeGet       = "get"
	errorCodeSave      = "save"
	errorCodeInsert    = "insert"
	errorCodeUpsert    = "upsert"
	errorCodeList      = "list"
	errorCodeUpdate    = "update"
	errorCodeDuplicate = "duplicate"
	errorCodeInvalid   = "invalid"
	errorCodePurge     = "purge"
)

// Store implements slot.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a database transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore slot.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetWalletForUpdate(ctx context.Context, userID wallet.UserID) (wallet.Wallet, error) {
	return store.getWallet(ctx, userID, true)
}

func (store *Store) GetWallet(ctx context.Context, userID wallet.UserID) (wallet.Wallet, error) {
	return store.getWallet(ctx, userID, false)
}

func (store *Store) getWallet(ctx context.Context, userID wallet.UserID, forUpdate bool) (wallet.Wallet, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row WalletModel
	err := query.Where("user_id = ?", userID.Int64()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wallet.ErrWalletNotFound)
	}
	if err != nil {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return mapWallet(row)
}

func (store *Store) SaveWallet(ctx context.Context, updated wallet.Wallet) error {
	row := WalletModel{
		UserID:        updated.UserID.Int64(),
		RealBalance:   updated.RealBalance,
		BonusBalance:  updated.BonusBalance,
		LockedBalance: updated.LockedBalance,
		UpdatedAt:     time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"real_balance", "bonus_balance", "locked_balance", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeSave, err)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction wallet.Transaction) error {
	row := TransactionModel{
		TransactionID: transaction.TransactionID,
		UserID:        transaction.UserID.Int64(),
		Type:          transaction.Type.String(),
		Amount:        transaction.Amount,
		BalanceBefore: transaction.BalanceBefore,
		BalanceAfter:  transaction.BalanceAfter,
		Reference:     transaction.Reference,
		CreatedAt:     time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTxn, errorCodeDuplicate, wallet.ErrDuplicateTransaction)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTxn, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetTransactionByReference(ctx context.Context, userID wallet.UserID, reference string) (wallet.Transaction, error) {
	var row TransactionModel
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND reference = ?", userID.Int64(), reference).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTxn, errorCodeGet, wallet.ErrTransactionNotFound)
	}
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTxn, errorCodeGet, err)
	}
	return mapTransaction(row)
}

func (store *Store) ListTransactions(ctx context.Context, userID wallet.UserID, beforeUnixUTC int64, limit int) ([]wallet.Transaction, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}
	var rows []TransactionModel
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID.Int64(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTxn, errorCodeList, err)
	}
	transactions := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) GetProviderByCode(ctx context.Context, code string) (slot.Provider, error) {
	var row ProviderModel
	err := store.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeGet, slot.ErrProviderNotFound)
	}
	if err != nil {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeGet, err)
	}
	return mapProvider(row)
}

func (store *Store) GetProviderByID(ctx context.Context, providerID int64) (slot.Provider, error) {
	var row ProviderModel
	err := store.db.WithContext(ctx).Where("id = ?", providerID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeGet, slot.ErrProviderNotFound)
	}
	if err != nil {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeGet, err)
	}
	return mapProvider(row)
}

func (store *Store) UpsertProvider(ctx context.Context, provider slot.Provider) (slot.Provider, error) {
	if err := provider.Validate(); err != nil {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeInvalid, err)
	}
	modes, err := json.Marshal(provider.WalletModes)
	if err != nil {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeInvalid, err)
	}
	row := ProviderModel{
		ID:                    provider.ID,
		Code:                  provider.Code,
		Name:                  provider.Name,
		APIBaseURL:            provider.APIBaseURL,
		AgencyUID:             provider.AgencyUID,
		EncryptionKey:         provider.EncryptionKey,
		PlayerPrefix:          provider.PlayerPrefix,
		CipherMode:            provider.CipherMode.String(),
		WalletModes:           datatypes.JSON(modes),
		SessionTimeoutSeconds: int64(provider.SessionTimeout / time.Second),
		Active:                provider.Active,
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "api_base_url", "agency_uid", "encryption_key",
				"player_prefix", "cipher_mode", "wallet_modes",
				"session_timeout_seconds", "active", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeUpsert, err)
	}
	return store.GetProviderByCode(ctx, provider.Code)
}

func (store *Store) GetGame(ctx context.Context, gameID int64) (slot.Game, error) {
	var row GameModel
	err := store.db.WithContext(ctx).Where("id = ?", gameID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot.Game{}, wrapStoreError(errorSubjectGame, errorCodeGet, slot.ErrGameNotFound)
	}
	if err != nil {
		return slot.Game{}, wrapStoreError(errorSubjectGame, errorCodeGet, err)
	}
	return mapGame(row), nil
}

func (store *Store) GetGameByRemoteUID(ctx context.Context, providerID int64, remoteGameUID string) (slot.Game, error) {
	var row GameModel
	err := store.db.WithContext(ctx).
		Where("provider_id = ? AND remote_game_uid = ?", providerID, remoteGameUID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot.Game{}, wrapStoreError(errorSubjectGame, errorCodeGet, slot.ErrGameNotFound)
	}
	if err != nil {
		return slot.Game{}, wrapStoreError(errorSubjectGame, errorCodeGet, err)
	}
	return mapGame(row), nil
}

func (store *Store) UpsertGame(ctx context.Context, game slot.Game) (slot.Game, error) {
	row := GameModel{
		ID:            game.ID,
		ProviderID:    game.ProviderID,
		RemoteGameUID: game.RemoteGameUID,
		Name:          game.Name,
		Category:      game.Category,
		Manufacturer:  game.Manufacturer,
		MinBet:        game.MinBet,
		MaxBet:        game.MaxBet,
		RTP:           game.RTP,
		Active:        game.Active,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_id"}, {Name: "remote_game_uid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "category", "manufacturer", "min_bet", "max_bet",
				"rtp", "active", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return slot.Game{}, wrapStoreError(errorSubjectGame, errorCodeUpsert, err)
	}
	return store.GetGameByRemoteUID(ctx, game.ProviderID, game.RemoteGameUID)
}

func (store *Store) UserExists(ctx context.Context, userID wallet.UserID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", userID.Int64()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return count > 0, nil
}

// EnsureUser inserts the user row if absent. This is the seeding path for
// development databases; the engine itself never creates users.
func (store *Store) EnsureUser(ctx context.Context, userID wallet.UserID) error {
	row := UserModel{ID: userID.Int64(), CreatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) CreateSession(ctx context.Context, session slot.Session) (slot.Session, error) {
	row := mapSessionModel(session)
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return slot.Session{}, wrapStoreError(errorSubjectSession, errorCodeInsert, err)
	}
	return mapSession(row)
}

func (store *Store) SaveSession(ctx context.Context, session slot.Session) error {
	row := mapSessionModel(session)
	if err := store.db.WithContext(ctx).Save(&row).Error; err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetSession(ctx context.Context, sessionID int64) (slot.Session, error) {
	var row SessionModel
	err := store.db.WithContext(ctx).Where("id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, slot.ErrSessionNotFound)
	}
	if err != nil {
		return slot.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return mapSession(row)
}

func (store *Store) GetActiveSession(ctx context.Context, userID wallet.UserID, gameID int64) (slot.Session, error) {
	var row SessionModel
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ? AND status = ?", userID.Int64(), gameID, slot.SessionActive.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, slot.ErrSessionNotFound)
	}
	if err != nil {
		return slot.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return mapSession(row)
}

func (store *Store) EndActiveSessions(ctx context.Context, userID wallet.UserID, gameID int64, status slot.SessionStatus, endedAtUnixUTC int64) (int64, error) {
	endedAt := time.Unix(endedAtUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("user_id = ? AND game_id = ? AND status = ?", userID.Int64(), gameID, slot.SessionActive.String()).
		Updates(map[string]interface{}{
			"status":   status.String(),
			"ended_at": endedAt,
		})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectSession, errorCodeUpdate, result.Error)
	}
	return result.RowsAffected, nil
}

func (store *Store) ListExpiredSessions(ctx context.Context, nowUnixUTC int64, limit int) ([]slot.Session, error) {
	now := time.Unix(nowUnixUTC, 0).UTC()
	var rows []SessionModel
	err := store.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", slot.SessionActive.String(), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
	}
	sessions := make([]slot.Session, 0, len(rows))
	for _, row := range rows {
		session, err := mapSession(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (store *Store) GetCallbackRecord(ctx context.Context, providerID int64, remoteTransactionID string) (slot.CallbackRecord, error) {
	var row CallbackModel
	err := store.db.WithContext(ctx).
		Where("provider_id = ? AND remote_transaction_id = ?", providerID, remoteTransactionID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return slot.CallbackRecord{}, wrapStoreError(errorSubjectCallback, errorCodeGet, slot.ErrCallbackNotFound)
	}
	if err != nil {
		return slot.CallbackRecord{}, wrapStoreError(errorSubjectCallback, errorCodeGet, err)
	}
	return mapCallback(row)
}

func (store *Store) InsertCallbackRecord(ctx context.Context, record slot.CallbackRecord) error {
	row := CallbackModel{
		ProviderID:          record.ProviderID,
		RemoteTransactionID: record.RemoteTransactionID,
		EventType:           record.EventType.String(),
		UserID:              record.UserID.Int64(),
		SessionID:           record.SessionID,
		RoundID:             record.RoundID,
		Amount:              record.Amount,
		BalanceAfter:        record.BalanceAfter,
		RolledBack:          record.RolledBack,
		CreatedAt:           time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectCallback, errorCodeDuplicate, slot.ErrDuplicateCallback)
	}
	if err != nil {
		return wrapStoreError(errorSubjectCallback, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) MarkCallbackRolledBack(ctx context.Context, providerID int64, remoteTransactionID string) error {
	result := store.db.WithContext(ctx).
		Model(&CallbackModel{}).
		Where("provider_id = ? AND remote_transaction_id = ?", providerID, remoteTransactionID).
		Update("rolled_back", true)
	if result.Error != nil {
		return wrapStoreError(errorSubjectCallback, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCallback, errorCodeUpdate, slot.ErrCallbackNotFound)
	}
	return nil
}

func (store *Store) ConsumeNonce(ctx context.Context, providerID int64, nonce string, expiresAtUnixUTC int64) error {
	row := NonceModel{
		ProviderID: providerID,
		Nonce:      nonce,
		ExpiresAt:  time.Unix(expiresAtUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectNonce, errorCodeDuplicate, slot.ErrNonceConsumed)
	}
	if err != nil {
		return wrapStoreError(errorSubjectNonce, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) PurgeExpiredNonces(ctx context.Context, nowUnixUTC int64) (int64, error) {
	now := time.Unix(nowUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&NonceModel{})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectNonce, errorCodePurge, result.Error)
	}
	return result.RowsAffected, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func mapWallet(row WalletModel) (wallet.Wallet, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return wallet.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	return wallet.Wallet{
		UserID:        userID,
		RealBalance:   row.RealBalance,
		BonusBalance:  row.BonusBalance,
		LockedBalance: row.LockedBalance,
	}, nil
}

func mapTransaction(row TransactionModel) (wallet.Transaction, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTxn, errorCodeInvalid, err)
	}
	transactionType, err := wallet.ParseTransactionType(row.Type)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTxn, errorCodeInvalid, err)
	}
	return wallet.Transaction{
		TransactionID:  row.TransactionID,
		UserID:         userID,
		Type:           transactionType,
		Amount:         row.Amount,
		BalanceBefore:  row.BalanceBefore,
		BalanceAfter:   row.BalanceAfter,
		Reference:      row.Reference,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapProvider(row ProviderModel) (slot.Provider, error) {
	mode, err := payload.ParseCipherMode(row.CipherMode)
	if err != nil {
		return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeInvalid, err)
	}
	var modes slot.WalletModes
	if len(row.WalletModes) > 0 {
		if err := json.Unmarshal(row.WalletModes, &modes); err != nil {
			return slot.Provider{}, wrapStoreError(errorSubjectProvider, errorCodeInvalid, err)
		}
	}
	return slot.Provider{
		ID:             row.ID,
		Code:           row.Code,
		Name:           row.Name,
		APIBaseURL:     row.APIBaseURL,
		AgencyUID:      row.AgencyUID,
		EncryptionKey:  row.EncryptionKey,
		PlayerPrefix:   row.PlayerPrefix,
		CipherMode:     mode,
		WalletModes:    modes,
		SessionTimeout: time.Duration(row.SessionTimeoutSeconds) * time.Second,
		Active:         row.Active,
	}, nil
}

func mapGame(row GameModel) slot.Game {
	return slot.Game{
		ID:            row.ID,
		ProviderID:    row.ProviderID,
		RemoteGameUID: row.RemoteGameUID,
		Name:          row.Name,
		Category:      row.Category,
		Manufacturer:  row.Manufacturer,
		MinBet:        row.MinBet,
		MaxBet:        row.MaxBet,
		RTP:           row.RTP,
		Active:        row.Active,
	}
}

func mapSessionModel(session slot.Session) SessionModel {
	var endedAt *time.Time
	if session.EndedAtUnixUTC != 0 {
		value := time.Unix(session.EndedAtUnixUTC, 0).UTC()
		endedAt = &value
	}
	return SessionModel{
		ID:             session.ID,
		Token:          session.Token,
		UserID:         session.UserID.Int64(),
		GameID:         session.GameID,
		ProviderID:     session.ProviderID,
		LaunchURL:      session.LaunchURL,
		Status:         session.Status.String(),
		InitialBalance: session.InitialBalance,
		TotalBets:      session.TotalBets,
		TotalWins:      session.TotalWins,
		RoundsPlayed:   session.RoundsPlayed,
		Demo:           session.Demo,
		ExpiresAt:      time.Unix(session.ExpiresAtUnixUTC, 0).UTC(),
		EndedAt:        endedAt,
		CreatedAt:      time.Unix(session.CreatedUnixUTC, 0).UTC(),
	}
}

func mapSession(row SessionModel) (slot.Session, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return slot.Session{}, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
	}
	status, err := slot.ParseSessionStatus(row.Status)
	if err != nil {
		return slot.Session{}, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
	}
	return slot.Session{
		ID:               row.ID,
		Token:            row.Token,
		UserID:           userID,
		GameID:           row.GameID,
		ProviderID:       row.ProviderID,
		LaunchURL:        row.LaunchURL,
		Status:           status,
		InitialBalance:   row.InitialBalance,
		TotalBets:        row.TotalBets,
		TotalWins:        row.TotalWins,
		RoundsPlayed:     row.RoundsPlayed,
		Demo:             row.Demo,
		ExpiresAtUnixUTC: row.ExpiresAt.Unix(),
		EndedAtUnixUTC:   timeOrZero(row.EndedAt),
		CreatedUnixUTC:   row.CreatedAt.Unix(),
	}, nil
}

func mapCallback(row CallbackModel) (slot.CallbackRecord, error) {
	userID, err := wallet.NewUserID(row.UserID)
	if err != nil {
		return slot.CallbackRecord{}, wrapStoreError(errorSubjectCallback, errorCodeInvalid, err)
	}
	eventType, err := slot.ParseEventType(row.EventType)
	if err != nil {
		return slot.CallbackRecord{}, wrapStoreError(errorSubjectCallback, errorCodeInvalid, err)
	}
	return slot.CallbackRecord{
		ProviderID:          row.ProviderID,
		RemoteTransactionID: row.RemoteTransactionID,
		EventType:           eventType,
		UserID:              userID,
		SessionID:           row.SessionID,
		RoundID:             row.RoundID,
		Amount:              row.Amount,
		BalanceAfter:        row.BalanceAfter,
		RolledBack:          row.RolledBack,
		CreatedUnixUTC:      row.CreatedAt.Unix(),
	}, nil
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
