package payload

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func mustCodec(test *testing.T, mode CipherMode) *Codec {
	test.Helper()
	codec, err := NewCodec(mode)
	if err != nil {
		test.Fatalf("codec: %v", err)
	}
	return codec
}

func launchFields() Fields {
	return Fields{
		{Key: "timestamp", Value: "1756300000000"},
		{Key: "agency_uid", Value: "AYUT"},
		{Key: "member_account", Value: "jili0042"},
		{Key: "game_uid", Value: "slot-777"},
		{Key: "credit_amount", Value: "1000.00"},
		{Key: "currency_code", Value: "PHP"},
	}
}

func TestEncodeDecodeRoundTrip(test *testing.T) {
	test.Parallel()
	for _, mode := range []CipherMode{CipherModeECB, CipherModeCBC} {
		codec := mustCodec(test, mode)
		fields := launchFields()
		ciphertext, err := codec.Encode(fields, testKey)
		if err != nil {
			test.Fatalf("%s encode: %v", mode, err)
		}
		decoded, err := codec.Decode(ciphertext, testKey)
		if err != nil {
			test.Fatalf("%s decode: %v", mode, err)
		}
		if len(decoded) != len(fields) {
			test.Fatalf("%s: expected %d fields, got %d", mode, len(fields), len(decoded))
		}
		for index, field := range fields {
			if decoded[index].Key != field.Key {
				test.Fatalf("%s: field %d key %q, expected %q", mode, index, decoded[index].Key, field.Key)
			}
			got, _ := decoded.Get(field.Key)
			want, _ := fields.Get(field.Key)
			if got != want {
				test.Fatalf("%s: field %q value %q, expected %q", mode, field.Key, got, want)
			}
		}
	}
}

func TestDecodeWrongKeyFails(test *testing.T) {
	test.Parallel()
	otherKey := []byte("fedcba9876543210fedcba9876543210")
	for _, mode := range []CipherMode{CipherModeECB, CipherModeCBC} {
		codec := mustCodec(test, mode)
		ciphertext, err := codec.Encode(launchFields(), testKey)
		if err != nil {
			test.Fatalf("%s encode: %v", mode, err)
		}
		_, err = codec.Decode(ciphertext, otherKey)
		if !errors.Is(err, ErrDecryption) && !errors.Is(err, ErrPayloadFormat) {
			test.Fatalf("%s: expected decryption failure, got %v", mode, err)
		}
	}
}

func TestDecodeMalformedBase64(test *testing.T) {
	test.Parallel()
	codec := mustCodec(test, CipherModeECB)
	if _, err := codec.Decode("%%%not-base64%%%", testKey); !errors.Is(err, ErrDecryption) {
		test.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecodeCorruptedCiphertext(test *testing.T) {
	test.Parallel()
	codec := mustCodec(test, CipherModeECB)
	truncated := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := codec.Decode(truncated, testKey); !errors.Is(err, ErrDecryption) {
		test.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestEncodeRejectsShortKey(test *testing.T) {
	test.Parallel()
	codec := mustCodec(test, CipherModeECB)
	if _, err := codec.Encode(launchFields(), []byte("too-short")); !errors.Is(err, ErrInvalidKey) {
		test.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestCBCCiphertextsDiffer(test *testing.T) {
	test.Parallel()
	codec := mustCodec(test, CipherModeCBC)
	first, err := codec.Encode(launchFields(), testKey)
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	second, err := codec.Encode(launchFields(), testKey)
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	if first == second {
		test.Fatalf("expected distinct ciphertexts under random IVs")
	}
}

func TestParseCipherModeRejectsUnknown(test *testing.T) {
	test.Parallel()
	if _, err := ParseCipherMode("gcm"); !errors.Is(err, ErrInvalidMode) {
		test.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestFieldsMarshalPreservesOrder(test *testing.T) {
	test.Parallel()
	fields := Fields{
		{Key: "b", Value: "2"},
		{Key: "a", Value: "1"},
	}
	raw, err := fields.MarshalJSON()
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"b":"2","a":"1"}` {
		test.Fatalf("unexpected serialization: %s", raw)
	}
}

func TestParseFieldsRejectsNestedObjects(test *testing.T) {
	test.Parallel()
	if _, err := ParseFields([]byte(`{"a":{"b":1}}`)); !errors.Is(err, ErrPayloadFormat) {
		test.Fatalf("expected ErrPayloadFormat, got %v", err)
	}
}

func TestEnvelopeValidate(test *testing.T) {
	test.Parallel()
	valid := NewEnvelope("AYUT", time.UnixMilli(1756300000000), "payload")
	if err := valid.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if valid.Timestamp != "1756300000000" {
		test.Fatalf("expected millisecond timestamp, got %s", valid.Timestamp)
	}
	for _, broken := range []Envelope{
		{Timestamp: "1", Payload: "x"},
		{AgencyUID: "AYUT", Payload: "x"},
		{AgencyUID: "AYUT", Timestamp: "1"},
	} {
		if err := broken.Validate(); !errors.Is(err, ErrInvalidEnvelope) {
			test.Fatalf("expected ErrInvalidEnvelope, got %v", err)
		}
	}
}

func TestEnvelopeTimeParsing(test *testing.T) {
	test.Parallel()
	envelope := NewEnvelope("AYUT", time.UnixMilli(1756300000000), "payload")
	at, err := envelope.Time()
	if err != nil {
		test.Fatalf("time: %v", err)
	}
	if at.UnixMilli() != 1756300000000 {
		test.Fatalf("expected 1756300000000, got %d", at.UnixMilli())
	}
	envelope.Timestamp = "not-a-number"
	if _, err := envelope.Time(); !errors.Is(err, ErrInvalidEnvelope) {
		test.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}
