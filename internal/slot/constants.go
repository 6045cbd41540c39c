package slot

const (
	fieldTimestamp     = "timestamp"
	fieldAgencyUID     = "agency_uid"
	fieldMemberAccount = "member_account"
	fieldGameUID       = "game_uid"
	fieldCreditAmount  = "credit_amount"
	fieldCurrencyCode  = "currency_code"
	fieldLanguage      = "language"
	fieldHomeURL       = "home_url"
	fieldPlatform      = "platform"
	fieldCallbackURL   = "callback_url"
	fieldSerialNumber  = "serial_number"
	fieldEventType     = "event_type"
	fieldAmount        = "amount"
	fieldGameRound     = "game_round"

	callbackPathPrefix = "/provider-callback/"
	callbackPathSuffix = "/callback"

	referenceDelimiter = ":"
	referenceSettle    = "settle"
)
