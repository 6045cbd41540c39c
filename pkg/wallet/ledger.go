package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Ledger applies balance mutations against a Store the caller scopes. The
// caller is responsible for running Debit and Credit inside a database
// transaction so the wallet update and its Transaction row commit together
// with any collaborating writes.
type Ledger struct {
	nowFn  func() int64
	idFn   func() string
	logger OperationLogger
}

// NewLedger wires a Ledger.
func NewLedger(now func() int64, options ...LedgerOption) (*Ledger, error) {
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidLedgerConfig)
	}
	ledger := &Ledger{nowFn: now, idFn: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(ledger)
		}
	}
	return ledger, nil
}

// Debit removes amount from the user's real balance. It fails with
// ErrInsufficientFunds when the real balance does not cover the amount,
// leaving the wallet untouched.
func (ledger *Ledger) Debit(ctx context.Context, store Store, userID UserID, amount Amount, transactionType TransactionType, reference string) (Transaction, error) {
	transaction, operationError := ledger.apply(ctx, store, userID, amount, transactionType, reference, false)
	ledger.logOperation(ctx, OperationLog{
		Operation: operationDebit,
		UserID:    userID,
		Type:      transactionType,
		Amount:    amount,
		Reference: reference,
		Error:     operationError,
	})
	return transaction, operationError
}

// Credit adds amount to the user's real balance.
func (ledger *Ledger) Credit(ctx context.Context, store Store, userID UserID, amount Amount, transactionType TransactionType, reference string) (Transaction, error) {
	transaction, operationError := ledger.apply(ctx, store, userID, amount, transactionType, reference, true)
	ledger.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		UserID:    userID,
		Type:      transactionType,
		Amount:    amount,
		Reference: reference,
		Error:     operationError,
	})
	return transaction, operationError
}

// Deposit credits a platform-side deposit onto the real balance. The
// reference deduplicates retried deposits the same way provider callbacks
// deduplicate: a repeated reference fails with ErrDuplicateTransaction.
func (ledger *Ledger) Deposit(ctx context.Context, store Store, userID UserID, amount Amount, reference string) (Transaction, error) {
	return ledger.Credit(ctx, store, userID, amount, TransactionDeposit, reference)
}

// Withdraw debits a platform-side withdrawal from the real balance.
func (ledger *Ledger) Withdraw(ctx context.Context, store Store, userID UserID, amount Amount, reference string) (Transaction, error) {
	return ledger.Debit(ctx, store, userID, amount, TransactionWithdrawal, reference)
}

// Balance returns a read-only snapshot of the wallet.
func (ledger *Ledger) Balance(ctx context.Context, store Store, userID UserID) (Balance, error) {
	snapshot, err := store.GetWallet(ctx, userID)
	ledger.logOperation(ctx, OperationLog{
		Operation: operationBalance,
		UserID:    userID,
		Error:     err,
	})
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Real:   snapshot.RealBalance,
		Bonus:  snapshot.BonusBalance,
		Locked: snapshot.LockedBalance,
	}, nil
}

func (ledger *Ledger) apply(ctx context.Context, store Store, userID UserID, amount Amount, transactionType TransactionType, reference string, credit bool) (Transaction, error) {
	current, err := store.GetWalletForUpdate(ctx, userID)
	if err != nil {
		return Transaction{}, err
	}
	balanceBefore := current.RealBalance
	balanceAfter := balanceBefore.Sub(amount.Decimal())
	if credit {
		balanceAfter = balanceBefore.Add(amount.Decimal())
	}
	if balanceAfter.IsNegative() {
		return Transaction{}, ErrInsufficientFunds
	}
	current.RealBalance = balanceAfter
	if err := current.Validate(); err != nil {
		return Transaction{}, err
	}
	if err := store.SaveWallet(ctx, current); err != nil {
		return Transaction{}, err
	}
	transaction := Transaction{
		TransactionID:  ledger.idFn(),
		UserID:         userID,
		Type:           transactionType,
		Amount:         amount.Decimal(),
		BalanceBefore:  balanceBefore,
		BalanceAfter:   balanceAfter,
		Reference:      reference,
		CreatedUnixUTC: ledger.nowFn(),
	}
	if err := store.InsertTransaction(ctx, transaction); err != nil {
		return Transaction{}, err
	}
	return transaction, nil
}

func (ledger *Ledger) logOperation(ctx context.Context, entry OperationLog) {
	if ledger.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	ledger.logger.LogOperation(ctx, entry)
}
