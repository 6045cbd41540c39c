package wallet

const (
	operationDebit   = "debit"
	operationCredit  = "credit"
	operationBalance = "balance"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
