package domain

import "errors"

// Client input errors. These are never retried.
var (
	ErrInvalidMerchantID = errors.New("invalid merchant id")
	ErrInvalidDate       = errors.New("invalid settlement date")
)

var ErrMerchantNotFound = errors.New("merchant not found")

// Upstream failures, surfaced after retries are exhausted.
var (
	ErrMerchantUnavailable     = errors.New("merchant data unavailable")
	ErrTransactionsUnavailable = errors.New("transaction data unavailable")
)

// ErrMalformedResponse means the upstream answered 2xx with a body that
// breaks the data contract.
var ErrMalformedResponse = errors.New("malformed upstream response")
