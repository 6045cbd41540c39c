package providerapi

// Code is one entry of the provider protocol's numeric result table. The
// table is closed: both sides treat it as the full contract, and anything
// outside it is reported through the Unknown fallback rather than invented
// ad hoc.
type Code int

const (
	CodeOK                   Code = 0
	CodeSystemError          Code = 10001
	CodeAgencyNotFound       Code = 10002
	CodePayloadFormat        Code = 10003
	CodeGameNotFound         Code = 10004
	CodeCurrencyMismatch     Code = 10005
	CodeDuplicatePlayer      Code = 10006
	CodeUnsupportedCurrency  Code = 10007
	CodeInvalidPlayerCharset Code = 10008

	CodeInsufficientFunds Code = 20001
	CodeStaleRequest      Code = 20002
	CodeUnknownPlayer     Code = 20003
	CodeSessionNotFound   Code = 20004
)

var codeMessages = map[Code]string{
	CodeOK:                   "ok",
	CodeSystemError:          "system error",
	CodeAgencyNotFound:       "agency not found",
	CodePayloadFormat:        "payload format error",
	CodeGameNotFound:         "game not found",
	CodeCurrencyMismatch:     "currency mismatch",
	CodeDuplicatePlayer:      "duplicate player",
	CodeUnsupportedCurrency:  "unsupported currency",
	CodeInvalidPlayerCharset: "invalid player account charset",

	CodeInsufficientFunds: "insufficient funds",
	CodeStaleRequest:      "request timestamp outside freshness window",
	CodeUnknownPlayer:     "unknown player",
	CodeSessionNotFound:   "no active session",
}

// Known reports whether the code belongs to the protocol table.
func (code Code) Known() bool {
	_, ok := codeMessages[code]
	return ok
}

// Message returns the table's canonical text for the code, or a generic
// fallback for codes outside the table.
func (code Code) Message() string {
	if message, ok := codeMessages[code]; ok {
		return message
	}
	return "unrecognized provider code"
}
