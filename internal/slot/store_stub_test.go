package slot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/pkg/wallet"
)

// stubStore is an in-memory Store. WithTx serializes callers through a
// mutex, mirroring the exclusive wallet-row lock of the real store, and
// restores the pre-transaction state when the callback fails, mirroring
// rollback.
type stubStore struct {
	mu              sync.Mutex
	wallets         map[int64]wallet.Wallet
	transactions    []wallet.Transaction
	providers       map[int64]Provider
	providersByCode map[string]Provider
	games           map[int64]Game
	users           map[int64]bool
	sessions        map[int64]Session
	nextSessionID   int64
	callbacks       map[string]CallbackRecord
	nonces          map[string]int64
}

func newStubStore() *stubStore {
	return &stubStore{
		wallets:         map[int64]wallet.Wallet{},
		providers:       map[int64]Provider{},
		providersByCode: map[string]Provider{},
		games:           map[int64]Game{},
		users:           map[int64]bool{},
		sessions:        map[int64]Session{},
		callbacks:       map[string]CallbackRecord{},
		nonces:          map[string]int64{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		return err
	}
	return nil
}

type stubSnapshot struct {
	wallets       map[int64]wallet.Wallet
	transactions  []wallet.Transaction
	sessions      map[int64]Session
	callbacks     map[string]CallbackRecord
	nonces        map[string]int64
	nextSessionID int64
}

func (store *stubStore) snapshot() stubSnapshot {
	snapshot := stubSnapshot{
		wallets:       make(map[int64]wallet.Wallet, len(store.wallets)),
		transactions:  append([]wallet.Transaction(nil), store.transactions...),
		sessions:      make(map[int64]Session, len(store.sessions)),
		callbacks:     make(map[string]CallbackRecord, len(store.callbacks)),
		nonces:        make(map[string]int64, len(store.nonces)),
		nextSessionID: store.nextSessionID,
	}
	for key, value := range store.wallets {
		snapshot.wallets[key] = value
	}
	for key, value := range store.sessions {
		snapshot.sessions[key] = value
	}
	for key, value := range store.callbacks {
		snapshot.callbacks[key] = value
	}
	for key, value := range store.nonces {
		snapshot.nonces[key] = value
	}
	return snapshot
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.wallets = snapshot.wallets
	store.transactions = snapshot.transactions
	store.sessions = snapshot.sessions
	store.callbacks = snapshot.callbacks
	store.nonces = snapshot.nonces
	store.nextSessionID = snapshot.nextSessionID
}

func (store *stubStore) GetWalletForUpdate(ctx context.Context, userID wallet.UserID) (wallet.Wallet, error) {
	return store.GetWallet(ctx, userID)
}

func (store *stubStore) GetWallet(_ context.Context, userID wallet.UserID) (wallet.Wallet, error) {
	snapshot, ok := store.wallets[userID.Int64()]
	if !ok {
		return wallet.Wallet{}, wallet.ErrWalletNotFound
	}
	return snapshot, nil
}

func (store *stubStore) SaveWallet(_ context.Context, updated wallet.Wallet) error {
	store.wallets[updated.UserID.Int64()] = updated
	return nil
}

func (store *stubStore) InsertTransaction(_ context.Context, transaction wallet.Transaction) error {
	store.transactions = append(store.transactions, transaction)
	return nil
}

func (store *stubStore) GetTransactionByReference(_ context.Context, userID wallet.UserID, reference string) (wallet.Transaction, error) {
	for _, transaction := range store.transactions {
		if transaction.UserID == userID && transaction.Reference == reference {
			return transaction, nil
		}
	}
	return wallet.Transaction{}, wallet.ErrTransactionNotFound
}

func (store *stubStore) ListTransactions(_ context.Context, userID wallet.UserID, _ int64, limit int) ([]wallet.Transaction, error) {
	listed := make([]wallet.Transaction, 0, limit)
	for _, transaction := range store.transactions {
		if transaction.UserID == userID && len(listed) < limit {
			listed = append(listed, transaction)
		}
	}
	return listed, nil
}

func (store *stubStore) GetProviderByCode(_ context.Context, code string) (Provider, error) {
	provider, ok := store.providersByCode[code]
	if !ok {
		return Provider{}, ErrProviderNotFound
	}
	return provider, nil
}

func (store *stubStore) GetProviderByID(_ context.Context, providerID int64) (Provider, error) {
	provider, ok := store.providers[providerID]
	if !ok {
		return Provider{}, ErrProviderNotFound
	}
	return provider, nil
}

func (store *stubStore) UpsertProvider(_ context.Context, provider Provider) (Provider, error) {
	if provider.ID == 0 {
		provider.ID = int64(len(store.providers) + 1)
	}
	store.providers[provider.ID] = provider
	store.providersByCode[provider.Code] = provider
	return provider, nil
}

func (store *stubStore) GetGame(_ context.Context, gameID int64) (Game, error) {
	game, ok := store.games[gameID]
	if !ok {
		return Game{}, ErrGameNotFound
	}
	return game, nil
}

func (store *stubStore) GetGameByRemoteUID(_ context.Context, providerID int64, remoteGameUID string) (Game, error) {
	for _, game := range store.games {
		if game.ProviderID == providerID && game.RemoteGameUID == remoteGameUID {
			return game, nil
		}
	}
	return Game{}, ErrGameNotFound
}

func (store *stubStore) UpsertGame(_ context.Context, game Game) (Game, error) {
	if game.ID == 0 {
		game.ID = int64(len(store.games) + 1)
	}
	store.games[game.ID] = game
	return game, nil
}

func (store *stubStore) UserExists(_ context.Context, userID wallet.UserID) (bool, error) {
	return store.users[userID.Int64()], nil
}

func (store *stubStore) CreateSession(_ context.Context, session Session) (Session, error) {
	store.nextSessionID++
	session.ID = store.nextSessionID
	store.sessions[session.ID] = session
	return session, nil
}

func (store *stubStore) SaveSession(_ context.Context, session Session) error {
	store.sessions[session.ID] = session
	return nil
}

func (store *stubStore) GetSession(_ context.Context, sessionID int64) (Session, error) {
	session, ok := store.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (store *stubStore) GetActiveSession(_ context.Context, userID wallet.UserID, gameID int64) (Session, error) {
	for _, session := range store.sessions {
		if session.UserID == userID && session.GameID == gameID && session.Status == SessionActive {
			return session, nil
		}
	}
	return Session{}, ErrSessionNotFound
}

func (store *stubStore) EndActiveSessions(_ context.Context, userID wallet.UserID, gameID int64, status SessionStatus, endedAtUnixUTC int64) (int64, error) {
	var ended int64
	for id, session := range store.sessions {
		if session.UserID == userID && session.GameID == gameID && session.Status == SessionActive {
			session.Status = status
			session.EndedAtUnixUTC = endedAtUnixUTC
			store.sessions[id] = session
			ended++
		}
	}
	return ended, nil
}

func (store *stubStore) ListExpiredSessions(_ context.Context, nowUnixUTC int64, limit int) ([]Session, error) {
	var expired []Session
	for _, session := range store.sessions {
		if session.Status == SessionActive && session.ExpiresAtUnixUTC < nowUnixUTC && len(expired) < limit {
			expired = append(expired, session)
		}
	}
	return expired, nil
}

func callbackKey(providerID int64, remoteTransactionID string) string {
	return fmt.Sprintf("%d:%s", providerID, remoteTransactionID)
}

func (store *stubStore) GetCallbackRecord(_ context.Context, providerID int64, remoteTransactionID string) (CallbackRecord, error) {
	record, ok := store.callbacks[callbackKey(providerID, remoteTransactionID)]
	if !ok {
		return CallbackRecord{}, ErrCallbackNotFound
	}
	return record, nil
}

func (store *stubStore) InsertCallbackRecord(_ context.Context, record CallbackRecord) error {
	key := callbackKey(record.ProviderID, record.RemoteTransactionID)
	if _, ok := store.callbacks[key]; ok {
		return ErrDuplicateCallback
	}
	store.callbacks[key] = record
	return nil
}

func (store *stubStore) MarkCallbackRolledBack(_ context.Context, providerID int64, remoteTransactionID string) error {
	key := callbackKey(providerID, remoteTransactionID)
	record, ok := store.callbacks[key]
	if !ok {
		return ErrCallbackNotFound
	}
	record.RolledBack = true
	store.callbacks[key] = record
	return nil
}

func (store *stubStore) ConsumeNonce(_ context.Context, providerID int64, nonce string, expiresAtUnixUTC int64) error {
	key := fmt.Sprintf("%d:%s", providerID, nonce)
	if _, ok := store.nonces[key]; ok {
		return ErrNonceConsumed
	}
	store.nonces[key] = expiresAtUnixUTC
	return nil
}

func (store *stubStore) PurgeExpiredNonces(_ context.Context, nowUnixUTC int64) (int64, error) {
	var purged int64
	for key, expiresAt := range store.nonces {
		if expiresAt < nowUnixUTC {
			delete(store.nonces, key)
			purged++
		}
	}
	return purged, nil
}

// Fixture helpers shared by the launch, reconcile, and lifecycle tests.

const (
	testProviderCode = "AYUT"
	testAgencyUID    = "AYUT"
	testKeyMaterial  = "0123456789abcdef0123456789abcdef"
	testGameUID      = "slot-777"
	testUserRawID    = int64(42)
)

var testNow = time.Unix(1756300000, 0).UTC()

func seedFixture(test *testing.T, store *stubStore, balance string) (Provider, Game, wallet.UserID) {
	test.Helper()
	provider, err := store.UpsertProvider(context.Background(), Provider{
		Code:           testProviderCode,
		Name:           "Ayut Gaming",
		APIBaseURL:     "https://api.ayut.example",
		AgencyUID:      testAgencyUID,
		EncryptionKey:  testKeyMaterial,
		PlayerPrefix:   "jili",
		CipherMode:     payload.CipherModeECB,
		WalletModes:    WalletModes{Seamless: true, Demo: true},
		SessionTimeout: 30 * time.Minute,
		Active:         true,
	})
	if err != nil {
		test.Fatalf("provider: %v", err)
	}
	game, err := store.UpsertGame(context.Background(), Game{
		ProviderID:    provider.ID,
		RemoteGameUID: testGameUID,
		Name:          "Lucky Sevens",
		Category:      "slots",
		Active:        true,
	})
	if err != nil {
		test.Fatalf("game: %v", err)
	}
	userID := mustUserID(test, testUserRawID)
	store.users[userID.Int64()] = true
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	store.wallets[userID.Int64()] = wallet.Wallet{UserID: userID, RealBalance: parsed}
	return provider, game, userID
}

func mustUserID(test *testing.T, raw int64) wallet.UserID {
	test.Helper()
	userID, err := wallet.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustLedger(test *testing.T) *wallet.Ledger {
	test.Helper()
	ledger, err := wallet.NewLedger(func() int64 { return testNow.Unix() })
	if err != nil {
		test.Fatalf("ledger: %v", err)
	}
	return ledger
}

func activeSession(store *stubStore, userID wallet.UserID, game Game, provider Provider) Session {
	session, _ := store.CreateSession(context.Background(), Session{
		Token:            "session-token",
		UserID:           userID,
		GameID:           game.ID,
		ProviderID:       provider.ID,
		Status:           SessionActive,
		InitialBalance:   decimal.NewFromInt(1000),
		ExpiresAtUnixUTC: testNow.Add(30 * time.Minute).Unix(),
		CreatedUnixUTC:   testNow.Unix(),
	})
	return session
}
