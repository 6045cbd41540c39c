// Package providerapi implements the outbound HTTP side of the provider
// protocol: encrypted launch and balance calls, and the closed numeric
// result-code table shared with the inbound callback responder.
package providerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/internal/slot"
)

const (
	launchPath  = "/game/v1"
	balancePath = "/balance/v1"

	defaultTimeout = 30 * time.Second

	fieldTimestamp     = "timestamp"
	fieldMemberAccount = "member_account"
	fieldGameUID       = "game_uid"
	fieldCreditAmount  = "credit_amount"
	fieldCurrencyCode  = "currency_code"
	fieldLanguage      = "language"
	fieldHomeURL       = "home_url"
	fieldPlatform      = "platform"
	fieldCallbackURL   = "callback_url"
	fieldLaunchURL     = "game_launch_url"
)

// response is the outer JSON shape every provider endpoint answers with.
// The payload string is encrypted the same way as the request payload.
type response struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Payload string `json:"payload"`
}

// Client calls the remote provider API. Calls are bounded by the HTTP
// client timeout and are never retried; the caller decides whether a
// failure is worth repeating.
type Client struct {
	httpClient *http.Client
	nowFn      func() time.Time
	logger     *zap.Logger
}

// NewClient builds a Client. A non-positive timeout falls back to the
// protocol default of 30 seconds.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		nowFn:      time.Now,
		logger:     logger,
	}
}

// LaunchGame posts the launch payload and returns the remote playable URL.
func (client *Client) LaunchGame(ctx context.Context, provider slot.Provider, request slot.LaunchRequest) (string, error) {
	now := client.nowFn().UTC()
	fields := payload.Fields{
		{Key: fieldTimestamp, Value: strconv.FormatInt(now.UnixMilli(), 10)},
		{Key: fieldMemberAccount, Value: request.MemberAccount},
		{Key: fieldGameUID, Value: request.GameUID},
		{Key: fieldCreditAmount, Value: request.CreditAmount},
		{Key: fieldCurrencyCode, Value: request.CurrencyCode},
		{Key: fieldLanguage, Value: request.Language},
		{Key: fieldHomeURL, Value: request.HomeURL},
		{Key: fieldPlatform, Value: request.Platform},
		{Key: fieldCallbackURL, Value: request.CallbackURL},
	}
	answer, err := client.post(ctx, provider, launchPath, now, fields)
	if err != nil {
		return "", err
	}
	launchURL, ok := answer.Get(fieldLaunchURL)
	if !ok || launchURL == "" {
		return "", fmt.Errorf("%w: launch response missing %s", payload.ErrPayloadFormat, fieldLaunchURL)
	}
	return launchURL, nil
}

// SessionBalance queries the player's remaining remote balance.
func (client *Client) SessionBalance(ctx context.Context, provider slot.Provider, memberAccount string) (decimal.Decimal, error) {
	now := client.nowFn().UTC()
	fields := payload.Fields{
		{Key: fieldTimestamp, Value: strconv.FormatInt(now.UnixMilli(), 10)},
		{Key: fieldMemberAccount, Value: memberAccount},
	}
	answer, err := client.post(ctx, provider, balancePath, now, fields)
	if err != nil {
		return decimal.Decimal{}, err
	}
	raw, ok := answer.Get(fieldCreditAmount)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: balance response missing %s", payload.ErrPayloadFormat, fieldCreditAmount)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: balance response %s %q", payload.ErrPayloadFormat, fieldCreditAmount, raw)
	}
	return balance, nil
}

// post encrypts the fields, wraps them in the standard envelope, performs
// the call, and decrypts the answer. A declared non-zero code surfaces as
// *slot.ProviderError; transport and HTTP-level failures surface as
// slot.ErrProviderUnreachable.
func (client *Client) post(ctx context.Context, provider slot.Provider, path string, now time.Time, fields payload.Fields) (payload.Fields, error) {
	codec, err := payload.NewCodec(provider.CipherMode)
	if err != nil {
		return nil, err
	}
	encoded, err := codec.Encode(fields, provider.Key())
	if err != nil {
		return nil, err
	}
	envelope := payload.NewEnvelope(provider.AgencyUID, now, encoded)
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(provider.APIBaseURL, "/") + path
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		client.logger.Warn("provider call failed",
			zap.String("provider", provider.Code),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", slot.ErrProviderUnreachable, err)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s answered %d", slot.ErrProviderUnreachable, provider.Code, httpResponse.StatusCode)
	}
	var answer response
	if err := json.NewDecoder(httpResponse.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("%w: undecodable response from %s", slot.ErrProviderUnreachable, provider.Code)
	}
	if answer.Code != int(CodeOK) {
		message := answer.Message
		if message == "" {
			message = Code(answer.Code).Message()
		}
		return nil, &slot.ProviderError{Code: answer.Code, Message: message}
	}
	if answer.Payload == "" {
		return payload.Fields{}, nil
	}
	decoded, err := codec.Decode(answer.Payload, provider.Key())
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
