package payload

import "errors"

// Error values returned by the codec and envelope validation.
var (
	ErrDecryption      = errors.New("payload decryption failed")
	ErrPayloadFormat   = errors.New("invalid payload format")
	ErrInvalidKey      = errors.New("invalid encryption key")
	ErrInvalidMode     = errors.New("invalid cipher mode")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)
