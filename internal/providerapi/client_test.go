package providerapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/playnexus/slotbridge/internal/payload"
	"github.com/playnexus/slotbridge/internal/slot"
)

const testKeyMaterial = "0123456789abcdef0123456789abcdef"

func testProvider(baseURL string) slot.Provider {
	return slot.Provider{
		Code:           "AYUT",
		AgencyUID:      "AYUT",
		APIBaseURL:     baseURL,
		EncryptionKey:  testKeyMaterial,
		PlayerPrefix:   "jili",
		CipherMode:     payload.CipherModeECB,
		SessionTimeout: 30 * time.Minute,
		Active:         true,
	}
}

func mustCodec(test *testing.T) *payload.Codec {
	test.Helper()
	codec, err := payload.NewCodec(payload.CipherModeECB)
	if err != nil {
		test.Fatalf("codec: %v", err)
	}
	return codec
}

func decodeRequest(test *testing.T, request *http.Request) payload.Fields {
	test.Helper()
	var envelope payload.Envelope
	if err := json.NewDecoder(request.Body).Decode(&envelope); err != nil {
		test.Fatalf("envelope: %v", err)
	}
	if err := envelope.Validate(); err != nil {
		test.Fatalf("envelope: %v", err)
	}
	fields, err := mustCodec(test).Decode(envelope.Payload, []byte(testKeyMaterial))
	if err != nil {
		test.Fatalf("payload: %v", err)
	}
	return fields
}

func encodedAnswer(test *testing.T, fields payload.Fields) string {
	test.Helper()
	encoded, err := mustCodec(test).Encode(fields, []byte(testKeyMaterial))
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	return encoded
}

func writeAnswer(test *testing.T, writer http.ResponseWriter, code int, message string, fields payload.Fields) {
	test.Helper()
	answer := response{Code: code, Message: message}
	if fields != nil {
		answer.Payload = encodedAnswer(test, fields)
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(answer); err != nil {
		test.Fatalf("answer: %v", err)
	}
}

func launchRequest() slot.LaunchRequest {
	return slot.LaunchRequest{
		MemberAccount: "jili0042",
		GameUID:       "slot-777",
		CreditAmount:  "1000.00",
		CurrencyCode:  "PHP",
		Language:      "en",
		HomeURL:       "https://play.example.com/lobby",
		Platform:      "web",
		CallbackURL:   "https://play.example.com/provider-callback/AYUT/callback",
	}
}

func TestLaunchGameReturnsRemoteURL(test *testing.T) {
	test.Parallel()
	const playableURL = "https://games.ayut.example/play/777?token=abc"
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/game/v1" {
			test.Errorf("unexpected path %s", request.URL.Path)
		}
		fields := decodeRequest(test, request)
		if account, _ := fields.Get("member_account"); account != "jili0042" {
			test.Errorf("unexpected member account %s", account)
		}
		if amount, _ := fields.Get("credit_amount"); amount != "1000.00" {
			test.Errorf("unexpected credit amount %s", amount)
		}
		if gameUID, _ := fields.Get("game_uid"); gameUID != "slot-777" {
			test.Errorf("unexpected game uid %s", gameUID)
		}
		writeAnswer(test, writer, 0, "ok", payload.Fields{{Key: "game_launch_url", Value: playableURL}})
	}))
	defer server.Close()
	client := NewClient(time.Second, zap.NewNop())

	launchURL, err := client.LaunchGame(context.Background(), testProvider(server.URL), launchRequest())
	if err != nil {
		test.Fatalf("launch: %v", err)
	}
	if launchURL != playableURL {
		test.Fatalf("expected %s, got %s", playableURL, launchURL)
	}
}

func TestLaunchGameDeclaredError(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writeAnswer(test, writer, int(CodeCurrencyMismatch), "currency mismatch", nil)
	}))
	defer server.Close()
	client := NewClient(time.Second, zap.NewNop())

	_, err := client.LaunchGame(context.Background(), testProvider(server.URL), launchRequest())
	var providerError *slot.ProviderError
	if !errors.As(err, &providerError) {
		test.Fatalf("expected *ProviderError, got %v", err)
	}
	if providerError.Code != int(CodeCurrencyMismatch) {
		test.Fatalf("expected code %d, got %d", CodeCurrencyMismatch, providerError.Code)
	}
}

func TestLaunchGameFillsMissingErrorMessage(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writeAnswer(test, writer, int(CodeGameNotFound), "", nil)
	}))
	defer server.Close()
	client := NewClient(time.Second, zap.NewNop())

	_, err := client.LaunchGame(context.Background(), testProvider(server.URL), launchRequest())
	var providerError *slot.ProviderError
	if !errors.As(err, &providerError) {
		test.Fatalf("expected *ProviderError, got %v", err)
	}
	if providerError.Message != "game not found" {
		test.Fatalf("expected canonical message, got %q", providerError.Message)
	}
}

func TestLaunchGameUnreachable(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()
	client := NewClient(time.Second, zap.NewNop())

	_, err := client.LaunchGame(context.Background(), testProvider(server.URL), launchRequest())
	if !errors.Is(err, slot.ErrProviderUnreachable) {
		test.Fatalf("expected ErrProviderUnreachable, got %v", err)
	}
}

func TestLaunchGameHTTPFailure(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	client := NewClient(time.Second, zap.NewNop())

	_, err := client.LaunchGame(context.Background(), testProvider(server.URL), launchRequest())
	if !errors.Is(err, slot.ErrProviderUnreachable) {
		test.Fatalf("expected ErrProviderUnreachable, got %v", err)
	}
}

func TestLaunchGameMissingURLInPayload(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writeAnswer(test, writer, 0, "ok", payload.Fields{{Key: "timestamp", Value: "1"}})
	}))
	defer server.Close()
	client := NewClient(time.Second, zap.NewNop())

	_, err := client.LaunchGame(context.Background(), testProvider(server.URL), launchRequest())
	if !errors.Is(err, payload.ErrPayloadFormat) {
		test.Fatalf("expected ErrPayloadFormat, got %v", err)
	}
}

func TestSessionBalance(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/balance/v1" {
			test.Errorf("unexpected path %s", request.URL.Path)
		}
		fields := decodeRequest(test, request)
		if account, _ := fields.Get("member_account"); account != "jili0042" {
			test.Errorf("unexpected member account %s", account)
		}
		writeAnswer(test, writer, 0, "ok", payload.Fields{{Key: "credit_amount", Value: "214.50"}})
	}))
	defer server.Close()
	client := NewClient(time.Second, zap.NewNop())

	balance, err := client.SessionBalance(context.Background(), testProvider(server.URL), "jili0042")
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.StringFixed(2) != "214.50" {
		test.Fatalf("expected 214.50, got %s", balance.StringFixed(2))
	}
}

func TestCodeTable(test *testing.T) {
	test.Parallel()
	if !CodeOK.Known() || CodeOK.Message() != "ok" {
		test.Fatalf("expected code 0 in the table")
	}
	if !CodeInsufficientFunds.Known() {
		test.Fatalf("expected insufficient-funds code in the table")
	}
	unknown := Code(99999)
	if unknown.Known() {
		test.Fatalf("expected 99999 outside the table")
	}
	if unknown.Message() != "unrecognized provider code" {
		test.Fatalf("unexpected fallback message %q", unknown.Message())
	}
}
