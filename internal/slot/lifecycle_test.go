package slot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playnexus/slotbridge/pkg/wallet"
)

func mustSweeper(test *testing.T, store Store, client ProviderClient) *Sweeper {
	test.Helper()
	sweeper, err := NewSweeper(store, client, mustLedger(test), func() time.Time { return testNow }, time.Minute, 100, zap.NewNop())
	if err != nil {
		test.Fatalf("sweeper: %v", err)
	}
	return sweeper
}

func TestSweepExpiresOverdueSession(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	provider, game, userID := seedFixture(test, store, "1000.00")
	session := activeSession(store, userID, game, provider)
	session.ExpiresAtUnixUTC = testNow.Add(-time.Minute).Unix()
	if err := store.SaveSession(context.Background(), session); err != nil {
		test.Fatalf("session: %v", err)
	}
	sweeper := mustSweeper(test, store, &stubProviderClient{})

	expired, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		test.Fatalf("expected 1 expired session, got %d", expired)
	}
	swept, err := store.GetSession(context.Background(), session.ID)
	if err != nil {
		test.Fatalf("session: %v", err)
	}
	if swept.Status != SessionExpired {
		test.Fatalf("expected expired status, got %s", swept.Status)
	}
	if swept.EndedAtUnixUTC != testNow.Unix() {
		test.Fatalf("expected ended at %d, got %d", testNow.Unix(), swept.EndedAtUnixUTC)
	}
	if len(store.transactions) != 0 {
		test.Fatalf("seamless provider must not settle, got %d rows", len(store.transactions))
	}
}

func TestSweepLeavesLiveSessionsAlone(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	provider, game, userID := seedFixture(test, store, "1000.00")
	session := activeSession(store, userID, game, provider)
	sweeper := mustSweeper(test, store, &stubProviderClient{})

	expired, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if expired != 0 {
		test.Fatalf("expected no expiries, got %d", expired)
	}
	live, err := store.GetSession(context.Background(), session.ID)
	if err != nil {
		test.Fatalf("session: %v", err)
	}
	if live.Status != SessionActive {
		test.Fatalf("expected session still active, got %s", live.Status)
	}
}

func TestSweepSettlesTransferProvider(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	provider, game, userID := seedFixture(test, store, "1000.00")
	provider.WalletModes = WalletModes{Transfer: true}
	if _, err := store.UpsertProvider(context.Background(), provider); err != nil {
		test.Fatalf("provider: %v", err)
	}
	session := activeSession(store, userID, game, provider)
	session.ExpiresAtUnixUTC = testNow.Add(-time.Minute).Unix()
	if err := store.SaveSession(context.Background(), session); err != nil {
		test.Fatalf("session: %v", err)
	}
	client := &stubProviderClient{remoteBalance: decimal.RequireFromString("214.50")}
	sweeper := mustSweeper(test, store, client)

	if _, err := sweeper.SweepOnce(context.Background()); err != nil {
		test.Fatalf("sweep: %v", err)
	}
	snapshot, err := store.GetWallet(context.Background(), userID)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	if got := snapshot.RealBalance.StringFixed(2); got != "1214.50" {
		test.Fatalf("expected settled balance 1214.50, got %s", got)
	}
	if len(store.transactions) != 1 {
		test.Fatalf("expected one settlement row, got %d", len(store.transactions))
	}
	settled := store.transactions[0]
	if settled.Type != wallet.TransactionSettlement {
		test.Fatalf("expected settlement transaction, got %s", settled.Type)
	}
	if settled.Reference != "settle:"+session.Token {
		test.Fatalf("unexpected reference %s", settled.Reference)
	}
}

func TestSweepSkipsUnreachableTransferProvider(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	provider, game, userID := seedFixture(test, store, "1000.00")
	provider.WalletModes = WalletModes{Transfer: true}
	if _, err := store.UpsertProvider(context.Background(), provider); err != nil {
		test.Fatalf("provider: %v", err)
	}
	session := activeSession(store, userID, game, provider)
	session.ExpiresAtUnixUTC = testNow.Add(-time.Minute).Unix()
	if err := store.SaveSession(context.Background(), session); err != nil {
		test.Fatalf("session: %v", err)
	}
	client := &stubProviderClient{balanceErr: ErrProviderUnreachable}
	sweeper := mustSweeper(test, store, client)

	expired, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if expired != 0 {
		test.Fatalf("expected skipped session, got %d expiries", expired)
	}
	untouched, err := store.GetSession(context.Background(), session.ID)
	if err != nil {
		test.Fatalf("session: %v", err)
	}
	if untouched.Status != SessionActive {
		test.Fatalf("expected session left for next sweep, got %s", untouched.Status)
	}
}

func TestSweepIgnoresAlreadyClosedSession(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	provider, game, userID := seedFixture(test, store, "1000.00")
	session := activeSession(store, userID, game, provider)
	session.ExpiresAtUnixUTC = testNow.Add(-time.Minute).Unix()
	if err := store.SaveSession(context.Background(), session); err != nil {
		test.Fatalf("session: %v", err)
	}
	sweeper := mustSweeper(test, store, &stubProviderClient{})

	listed, err := store.ListExpiredSessions(context.Background(), testNow.Unix(), 100)
	if err != nil || len(listed) != 1 {
		test.Fatalf("expected one overdue session, got %d (%v)", len(listed), err)
	}
	// Close it between listing and expiry, as a concurrent session_end would.
	session.Status = SessionEnded
	if err := store.SaveSession(context.Background(), session); err != nil {
		test.Fatalf("session: %v", err)
	}
	if err := sweeper.expireSession(context.Background(), listed[0], testNow); err != nil {
		test.Fatalf("expire: %v", err)
	}
	closed, err := store.GetSession(context.Background(), session.ID)
	if err != nil {
		test.Fatalf("session: %v", err)
	}
	if closed.Status != SessionEnded {
		test.Fatalf("expected ended status preserved, got %s", closed.Status)
	}
}

func TestSweepPurgesExpiredNonces(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	provider, _, _ := seedFixture(test, store, "1000.00")
	if err := store.ConsumeNonce(context.Background(), provider.ID, "stale", testNow.Add(-time.Hour).Unix()); err != nil {
		test.Fatalf("nonce: %v", err)
	}
	if err := store.ConsumeNonce(context.Background(), provider.ID, "fresh", testNow.Add(time.Hour).Unix()); err != nil {
		test.Fatalf("nonce: %v", err)
	}
	sweeper := mustSweeper(test, store, &stubProviderClient{})

	if _, err := sweeper.SweepOnce(context.Background()); err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if len(store.nonces) != 1 {
		test.Fatalf("expected one surviving nonce, got %d", len(store.nonces))
	}
	if err := store.ConsumeNonce(context.Background(), provider.ID, "fresh", testNow.Add(time.Hour).Unix()); !errors.Is(err, ErrNonceConsumed) {
		test.Fatalf("expected the fresh nonce to stay consumed, got %v", err)
	}
}

func TestNewSweeperValidatesConfig(test *testing.T) {
	test.Parallel()
	store := newStubStore()
	if _, err := NewSweeper(nil, &stubProviderClient{}, mustLedger(test), time.Now, time.Minute, 100, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for nil store, got %v", err)
	}
	if _, err := NewSweeper(store, &stubProviderClient{}, mustLedger(test), time.Now, 0, 100, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for zero interval, got %v", err)
	}
	if _, err := NewSweeper(store, &stubProviderClient{}, mustLedger(test), time.Now, time.Minute, 0, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig for zero batch, got %v", err)
	}
}
