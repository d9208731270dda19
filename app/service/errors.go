package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrOrderNotFound       = errors.New("order not found")
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrIntentPending       = errors.New("order already has a pending payment intent")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrSignatureInvalid    = errors.New("webhook signature verification failed")
	ErrMalformedPayload    = errors.New("webhook payload is malformed")
	ErrUnknownIntent       = errors.New("webhook references an unknown intent")
	ErrRefundUnsupported   = errors.New("provider does not support refunds")
	ErrRefundRejected      = errors.New("refund rejected")
)
