package slot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/pkg/wallet"
)

// WalletModes lists the wallet integrations a provider supports. The
// fields are deliberately enumerated rather than kept as an open map so
// provider-contract drift shows up at compile time.
type WalletModes struct {
	Seamless bool
	Transfer bool
	Demo     bool
}

// Provider holds one remote operator's credentials and contract
// configuration. Rows are maintained by admin tooling and are read-only to
// the reconciliation engine.
type Provider struct {
	ID             int64
	Code           string
	Name           string
	APIBaseURL     string
	AgencyUID      string
	EncryptionKey  string
	PlayerPrefix   string
	CipherMode     payload.CipherMode
	WalletModes    WalletModes
	SessionTimeout time.Duration
	Active         bool
}

const minimumProviderKeyLength = 32

// Validate enforces the provider configuration invariants.
func (provider Provider) Validate() error {
	if strings.TrimSpace(provider.Code) == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidProviderConfig)
	}
	if strings.TrimSpace(provider.AgencyUID) == "" {
		return fmt.Errorf("%w: empty agency uid", ErrInvalidProviderConfig)
	}
	if len(provider.EncryptionKey) < minimumProviderKeyLength {
		return fmt.Errorf("%w: encryption key shorter than %d characters", ErrInvalidProviderConfig, minimumProviderKeyLength)
	}
	if strings.TrimSpace(provider.PlayerPrefix) == "" {
		return fmt.Errorf("%w: empty player prefix", ErrInvalidProviderConfig)
	}
	if _, err := payload.ParseCipherMode(provider.CipherMode.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProviderConfig, err)
	}
	if provider.SessionTimeout <= 0 {
		return fmt.Errorf("%w: non-positive session timeout", ErrInvalidProviderConfig)
	}
	return nil
}

// Key returns the symmetric key bytes.
func (provider Provider) Key() []byte {
	return []byte(provider.EncryptionKey)
}

// MemberAccount derives the provider-facing player identity. The value is
// deterministic and stable across calls; the remote system keys its player
// records on it.
func (provider Provider) MemberAccount(userID wallet.UserID) string {
	return fmt.Sprintf("%s%04d", provider.PlayerPrefix, userID.Int64())
}

// ParseMemberAccount reverses MemberAccount, recovering the local user id.
func (provider Provider) ParseMemberAccount(account string) (wallet.UserID, error) {
	suffix, found := strings.CutPrefix(account, provider.PlayerPrefix)
	if !found || suffix == "" {
		return wallet.UserID{}, fmt.Errorf("%w: account %q does not carry prefix %q", ErrUnknownPlayer, account, provider.PlayerPrefix)
	}
	raw, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return wallet.UserID{}, fmt.Errorf("%w: account %q has non-numeric suffix", ErrUnknownPlayer, account)
	}
	userID, err := wallet.NewUserID(raw)
	if err != nil {
		return wallet.UserID{}, fmt.Errorf("%w: account %q", ErrUnknownPlayer, account)
	}
	return userID, nil
}

// Game is one entry of a provider's catalog, synced periodically from the
// remote side.
type Game struct {
	ID            int64
	ProviderID    int64
	RemoteGameUID string
	Name          string
	Category      string
	Manufacturer  string
	MinBet        decimal.Decimal
	MaxBet        decimal.Decimal
	RTP           decimal.Decimal
	Active        bool
}

// SessionStatus defines the session lifecycle.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionEnded   SessionStatus = "ended"
)

// ParseSessionStatus validates a session status string.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	switch SessionStatus(raw) {
	case SessionActive, SessionExpired, SessionEnded:
		return SessionStatus(raw), nil
	}
	return "", fmt.Errorf("%w: status %q", ErrInvalidSession, raw)
}

// String returns the stable status name.
func (status SessionStatus) String() string {
	return string(status)
}

// Session bounds one remote-game engagement for one user. At most one
// session per (user, game) pair is active at a time; a repeated launch
// supersedes the previous session instead of duplicating it.
type Session struct {
	ID               int64
	Token            string
	UserID           wallet.UserID
	GameID           int64
	ProviderID       int64
	LaunchURL        string
	Status           SessionStatus
	InitialBalance   decimal.Decimal
	TotalBets        decimal.Decimal
	TotalWins        decimal.Decimal
	RoundsPlayed     int64
	Demo             bool
	ExpiresAtUnixUTC int64
	EndedAtUnixUTC   int64
	CreatedUnixUTC   int64
}

// ActiveAt reports whether the session can scope money movement at the
// given instant.
func (session Session) ActiveAt(nowUnixUTC int64) bool {
	return session.Status == SessionActive && session.ExpiresAtUnixUTC > nowUnixUTC
}

// EventType enumerates the callback events a provider reports.
type EventType string

const (
	EventBet          EventType = "bet"
	EventWin          EventType = "win"
	EventRollback     EventType = "rollback"
	EventBalanceQuery EventType = "balance_query"
	EventSessionEnd   EventType = "session_end"
)

// ParseEventType validates an event type string.
func ParseEventType(raw string) (EventType, error) {
	switch EventType(raw) {
	case EventBet, EventWin, EventRollback, EventBalanceQuery, EventSessionEnd:
		return EventType(raw), nil
	}
	return "", fmt.Errorf("%w: event %q", ErrInvalidEvent, raw)
}

// String returns the stable event name.
func (eventType EventType) String() string {
	return string(eventType)
}

// CallbackRecord is the applied-callback index entry: one row per remote
// transaction id per provider. It doubles as the replay answer, carrying
// the balance the original application computed.
type CallbackRecord struct {
	ProviderID          int64
	RemoteTransactionID string
	EventType           EventType
	UserID              wallet.UserID
	SessionID           int64
	RoundID             string
	Amount              decimal.Decimal
	BalanceAfter        decimal.Decimal
	RolledBack          bool
	CreatedUnixUTC      int64
}

// CallbackRequest is the decoded payload of one inbound callback.
type CallbackRequest struct {
	MemberAccount       string
	RemoteTransactionID string
	EventType           EventType
	Amount              decimal.Decimal
	RemoteGameUID       string
	RoundID             string
}

func parseCallbackRequest(fields payload.Fields) (CallbackRequest, error) {
	memberAccount, ok := fields.Get(fieldMemberAccount)
	if !ok || memberAccount == "" {
		return CallbackRequest{}, fmt.Errorf("%w: missing %s", payload.ErrPayloadFormat, fieldMemberAccount)
	}
	remoteTransactionID, ok := fields.Get(fieldSerialNumber)
	if !ok || remoteTransactionID == "" {
		return CallbackRequest{}, fmt.Errorf("%w: missing %s", payload.ErrPayloadFormat, fieldSerialNumber)
	}
	rawEvent, ok := fields.Get(fieldEventType)
	if !ok {
		return CallbackRequest{}, fmt.Errorf("%w: missing %s", payload.ErrPayloadFormat, fieldEventType)
	}
	eventType, err := ParseEventType(rawEvent)
	if err != nil {
		return CallbackRequest{}, fmt.Errorf("%w: %v", payload.ErrPayloadFormat, err)
	}

	request := CallbackRequest{
		MemberAccount:       memberAccount,
		RemoteTransactionID: remoteTransactionID,
		EventType:           eventType,
	}
	if rawAmount, ok := fields.Get(fieldAmount); ok && rawAmount != "" {
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return CallbackRequest{}, fmt.Errorf("%w: bad %s %q", payload.ErrPayloadFormat, fieldAmount, rawAmount)
		}
		request.Amount = amount
	}
	switch eventType {
	case EventBet, EventWin:
		if !request.Amount.IsPositive() {
			return CallbackRequest{}, fmt.Errorf("%w: %s requires a positive %s", payload.ErrPayloadFormat, eventType, fieldAmount)
		}
	}
	if gameUID, ok := fields.Get(fieldGameUID); ok {
		request.RemoteGameUID = gameUID
	}
	if roundID, ok := fields.Get(fieldGameRound); ok {
		request.RoundID = roundID
	}
	return request, nil
}
