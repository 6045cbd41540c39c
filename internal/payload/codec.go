package payload

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// CipherMode selects the block-cipher mode the remote provider contract
// requires. Some providers specify plain ECB without an initialization
// vector, others CBC with the IV prepended to the ciphertext. The mode is
// pinned per provider by configuration; there is no default.
type CipherMode string

const (
	CipherModeECB CipherMode = "ecb"
	CipherModeCBC CipherMode = "cbc"
)

// ParseCipherMode validates a cipher mode string.
func ParseCipherMode(raw string) (CipherMode, error) {
	switch CipherMode(raw) {
	case CipherModeECB, CipherModeCBC:
		return CipherMode(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

// String returns the stable mode name.
func (mode CipherMode) String() string {
	return string(mode)
}

const minimumKeyLength = 32

// Codec performs the reversible transformation between payload fields and
// the base64 ciphertext carried in the envelope. It is stateless apart
// from the configured mode and safe for concurrent use.
type Codec struct {
	mode       CipherMode
	randReader io.Reader
}

// NewCodec wires a codec for the given mode.
func NewCodec(mode CipherMode) (*Codec, error) {
	if _, err := ParseCipherMode(mode.String()); err != nil {
		return nil, err
	}
	return &Codec{mode: mode, randReader: rand.Reader}, nil
}

// Mode returns the configured cipher mode.
func (codec *Codec) Mode() CipherMode {
	return codec.mode
}

// Encode serializes fields to canonical JSON, encrypts with AES-256 in the
// configured mode, and returns base64 text.
func (codec *Codec) Encode(fields Fields, key []byte) (string, error) {
	block, err := newBlockCipher(key)
	if err != nil {
		return "", err
	}
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	padded := padPKCS7(plaintext, block.BlockSize())

	var ciphertext []byte
	switch codec.mode {
	case CipherModeECB:
		ciphertext = make([]byte, len(padded))
		for offset := 0; offset < len(padded); offset += block.BlockSize() {
			block.Encrypt(ciphertext[offset:], padded[offset:])
		}
	case CipherModeCBC:
		initializationVector := make([]byte, block.BlockSize())
		if _, err := io.ReadFull(codec.randReader, initializationVector); err != nil {
			return "", fmt.Errorf("read iv: %w", err)
		}
		body := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, initializationVector).CryptBlocks(body, padded)
		ciphertext = append(initializationVector, body...)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decode reverses Encode. It fails with ErrDecryption on malformed base64,
// a wrong key, or corrupted ciphertext, and with ErrPayloadFormat when the
// decrypted bytes are not a flat JSON object.
func (codec *Codec) Decode(ciphertextBase64 string, key []byte) (Fields, error) {
	block, err := newBlockCipher(key)
	if err != nil {
		return nil, err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed base64", ErrDecryption)
	}

	var padded []byte
	switch codec.mode {
	case CipherModeECB:
		if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
			return nil, fmt.Errorf("%w: ciphertext length not a block multiple", ErrDecryption)
		}
		padded = make([]byte, len(ciphertext))
		for offset := 0; offset < len(ciphertext); offset += block.BlockSize() {
			block.Decrypt(padded[offset:], ciphertext[offset:])
		}
	case CipherModeCBC:
		if len(ciphertext) < 2*block.BlockSize() || len(ciphertext)%block.BlockSize() != 0 {
			return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
		}
		initializationVector := ciphertext[:block.BlockSize()]
		body := ciphertext[block.BlockSize():]
		padded = make([]byte, len(body))
		cipher.NewCBCDecrypter(block, initializationVector).CryptBlocks(padded, body)
	}

	plaintext, err := unpadPKCS7(padded, block.BlockSize())
	if err != nil {
		return nil, err
	}
	fields, err := ParseFields(plaintext)
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// newBlockCipher builds an AES-256 block over the first 32 key bytes.
// Provider keys are required to carry at least 32 characters.
func newBlockCipher(key []byte) (cipher.Block, error) {
	if len(key) < minimumKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidKey, minimumKeyLength, len(key))
	}
	block, err := aes.NewCipher(key[:minimumKeyLength])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return block, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrDecryption)
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, paddingByte := range data[len(data)-padding:] {
		if int(paddingByte) != padding {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return data[:len(data)-padding], nil
}
