package wallet

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// UserID identifies a wallet owner.
type UserID struct {
	value int64
}

// NewUserID validates a user id.
func NewUserID(raw int64) (UserID, error) {
	if raw <= 0 {
		return UserID{}, fmt.Errorf("%w: must be positive", ErrInvalidUserID)
	}
	return UserID{value: raw}, nil
}

// Int64 returns the numeric identifier.
func (id UserID) Int64() int64 {
	return id.value
}

// String returns the decimal representation of the identifier.
func (id UserID) String() string {
	return strconv.FormatInt(id.value, 10)
}

// Amount is a strictly positive fixed-point money amount with at most two
// decimal places.
type Amount struct {
	value decimal.Decimal
}

// NewAmount validates an amount.
func NewAmount(raw decimal.Decimal) (Amount, error) {
	if !raw.IsPositive() {
		return Amount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if raw.Exponent() < -2 {
		return Amount{}, fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
	}
	return Amount{value: raw}, nil
}

// ParseAmount validates an amount given as a decimal string.
func ParseAmount(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return NewAmount(parsed)
}

// Decimal returns the underlying decimal value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String renders the amount with exactly two decimal places.
func (amount Amount) String() string {
	return amount.value.StringFixed(2)
}

// TransactionType enumerates ledger mutation kinds.
type TransactionType string

const (
	TransactionBet        TransactionType = "bet"
	TransactionWin        TransactionType = "win"
	TransactionRollback   TransactionType = "rollback"
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionBonus      TransactionType = "bonus"
	TransactionSettlement TransactionType = "settlement"
)

// ParseTransactionType validates a transaction type string.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionBet, TransactionWin, TransactionRollback, TransactionDeposit,
		TransactionWithdrawal, TransactionBonus, TransactionSettlement:
		return TransactionType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
}

// String returns the stable type name.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// Wallet is the per-user running balance derived from the transaction
// ledger. All balances are non-negative.
type Wallet struct {
	UserID        UserID
	RealBalance   decimal.Decimal
	BonusBalance  decimal.Decimal
	LockedBalance decimal.Decimal
}

// Validate enforces the non-negative balance invariants.
func (wallet Wallet) Validate() error {
	if wallet.RealBalance.IsNegative() {
		return fmt.Errorf("%w: negative real balance", ErrInvalidBalance)
	}
	if wallet.BonusBalance.IsNegative() {
		return fmt.Errorf("%w: negative bonus balance", ErrInvalidBalance)
	}
	if wallet.LockedBalance.IsNegative() {
		return fmt.Errorf("%w: negative locked balance", ErrInvalidBalance)
	}
	return nil
}

// Transaction is one immutable line in the audit ledger. Rows are never
// updated or deleted after creation; balance_after must equal the wallet's
// value at commit time.
type Transaction struct {
	TransactionID  string
	UserID         UserID
	Type           TransactionType
	Amount         decimal.Decimal
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	Reference      string
	CreatedUnixUTC int64
}

// Balance is a read-only snapshot of a wallet.
type Balance struct {
	Real   decimal.Decimal
	Bonus  decimal.Decimal
	Locked decimal.Decimal
}

// Store is the persistence contract used by Ledger operations. Callers own
// the transaction scope: implementations hand a transaction-bound Store to
// the operation so wallet, transaction, and collaborating writes commit
// together. GetWalletForUpdate must take an exclusive lock on the single
// wallet row, never broader.
type Store interface {
	GetWalletForUpdate(ctx context.Context, userID UserID) (Wallet, error)
	GetWallet(ctx context.Context, userID UserID) (Wallet, error)
	SaveWallet(ctx context.Context, wallet Wallet) error
	InsertTransaction(ctx context.Context, transaction Transaction) error
	GetTransactionByReference(ctx context.Context, userID UserID, reference string) (Transaction, error)
	ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error)
}
