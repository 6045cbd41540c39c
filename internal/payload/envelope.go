package payload

import (
	"fmt"
	"strconv"
	"time"
)

// Envelope is the outer wire frame exchanged with a provider's integration
// endpoint: the tenant identifier and timestamp travel in plaintext, the
// payload is the encrypted field object. Nonce is optional; providers that
// send one get single-use enforcement on the callback path.
type Envelope struct {
	AgencyUID string `json:"agency_uid"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
	Nonce     string `json:"nonce,omitempty"`
}

// NewEnvelope assembles an envelope with a millisecond timestamp.
func NewEnvelope(agencyUID string, at time.Time, encodedPayload string) Envelope {
	return Envelope{
		AgencyUID: agencyUID,
		Timestamp: strconv.FormatInt(at.UnixMilli(), 10),
		Payload:   encodedPayload,
	}
}

// Validate checks that the three required envelope parts are present.
func (envelope Envelope) Validate() error {
	if envelope.AgencyUID == "" {
		return fmt.Errorf("%w: missing agency uid", ErrInvalidEnvelope)
	}
	if envelope.Timestamp == "" {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEnvelope)
	}
	if envelope.Payload == "" {
		return fmt.Errorf("%w: missing payload", ErrInvalidEnvelope)
	}
	return nil
}

// Time parses the millisecond timestamp.
func (envelope Envelope) Time() (time.Time, error) {
	milliseconds, err := strconv.ParseInt(envelope.Timestamp, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidEnvelope, envelope.Timestamp)
	}
	return time.UnixMilli(milliseconds).UTC(), nil
}
