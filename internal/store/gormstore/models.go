package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProviderModel mirrors the providers table. Wallet-mode capabilities are
// kept as a JSON document so adding a capability does not need a column
// migration.
type ProviderModel struct {
	ID                    int64          `gorm:"primaryKey;autoIncrement"`
	Code                  string         `gorm:"not null;uniqueIndex:uniq_providers_code"`
	Name                  string         `gorm:"not null"`
	APIBaseURL            string         `gorm:"not null"`
	AgencyUID             string         `gorm:"not null"`
	EncryptionKey         string         `gorm:"not null"`
	PlayerPrefix          string         `gorm:"not null"`
	CipherMode            string         `gorm:"not null"`
	WalletModes           datatypes.JSON `gorm:"not null"`
	SessionTimeoutSeconds int64          `gorm:"not null"`
	Active                bool           `gorm:"not null"`
	CreatedAt             time.Time      `gorm:"not null"`
	UpdatedAt             time.Time      `gorm:"not null"`
}

func (ProviderModel) TableName() string { return "providers" }

// GameModel mirrors the games table.
type GameModel struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	ProviderID    int64           `gorm:"not null;index:uniq_games_provider_uid,unique,priority:1"`
	RemoteGameUID string          `gorm:"not null;index:uniq_games_provider_uid,unique,priority:2"`
	Name          string          `gorm:"not null"`
	Category      string          `gorm:""`
	Manufacturer  string          `gorm:""`
	MinBet        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	MaxBet        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	RTP           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Active        bool            `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (GameModel) TableName() string { return "games" }

// UserModel mirrors the users table. The platform's account service owns
// the rows; this service only checks existence.
type UserModel struct {
	ID        int64     `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

// WalletModel mirrors the wallets table, one row per user.
type WalletModel struct {
	UserID        int64           `gorm:"primaryKey"`
	RealBalance   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BonusBalance  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	LockedBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (WalletModel) TableName() string { return "wallets" }

// TransactionModel mirrors the wallet_transactions table. The (user_id,
// reference) pair is unique so one provider transaction can never post
// twice against the same wallet.
type TransactionModel struct {
	TransactionID string          `gorm:"type:uuid;primaryKey"`
	UserID        int64           `gorm:"not null;index:idx_transactions_user_created,priority:1;index:uniq_transactions_user_reference,unique,priority:1"`
	Type          string          `gorm:"not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Reference     string          `gorm:"not null;index:uniq_transactions_user_reference,unique,priority:2"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_transactions_user_created,priority:2"`
}

func (TransactionModel) TableName() string { return "wallet_transactions" }

func (transaction *TransactionModel) BeforeCreate(*gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// SessionModel mirrors the game_sessions table.
type SessionModel struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	Token          string          `gorm:"not null;uniqueIndex:uniq_sessions_token"`
	UserID         int64           `gorm:"not null;index:idx_sessions_user_game_status,priority:1"`
	GameID         int64           `gorm:"not null;index:idx_sessions_user_game_status,priority:2"`
	ProviderID     int64           `gorm:"not null"`
	LaunchURL      string          `gorm:""`
	Status         string          `gorm:"not null;index:idx_sessions_user_game_status,priority:3;index:idx_sessions_status_expiry,priority:1"`
	InitialBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	TotalBets      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	TotalWins      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	RoundsPlayed   int64           `gorm:"not null"`
	Demo           bool            `gorm:"not null"`
	ExpiresAt      time.Time       `gorm:"not null;index:idx_sessions_status_expiry,priority:2"`
	EndedAt        *time.Time      `gorm:""`
	CreatedAt      time.Time       `gorm:"not null"`
}

func (SessionModel) TableName() string { return "game_sessions" }

// CallbackModel mirrors the provider_callbacks table: the idempotency
// index for inbound callbacks, one row per remote transaction id per
// provider.
type CallbackModel struct {
	ProviderID          int64           `gorm:"primaryKey;autoIncrement:false"`
	RemoteTransactionID string          `gorm:"primaryKey"`
	EventType           string          `gorm:"not null"`
	UserID              int64           `gorm:"not null"`
	SessionID           int64           `gorm:"not null"`
	RoundID             string          `gorm:""`
	Amount              decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceAfter        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	RolledBack          bool            `gorm:"not null"`
	CreatedAt           time.Time       `gorm:"not null"`
}

func (CallbackModel) TableName() string { return "provider_callbacks" }

// NonceModel mirrors the provider_nonces table.
type NonceModel struct {
	ProviderID int64     `gorm:"primaryKey;autoIncrement:false"`
	Nonce      string    `gorm:"primaryKey"`
	ExpiresAt  time.Time `gorm:"not null;index:idx_nonces_expiry"`
}

func (NonceModel) TableName() string { return "provider_nonces" }

// AutoMigrate creates or updates the full schema. The sqlite development
// path relies on it; postgres deployments migrate out of band.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ProviderModel{},
		&GameModel{},
		&UserModel{},
		&WalletModel{},
		&TransactionModel{},
		&SessionModel{},
		&CallbackModel{},
		&NonceModel{},
	)
}
