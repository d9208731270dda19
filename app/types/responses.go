package types

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type IntentResponse struct {
	IntentId    string `json:"intent_id"`
	OrderId     string `json:"order_id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
	RedirectUrl string `json:"redirect_url,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type RefundResponse struct {
	RefundId string `json:"refund_id"`
	Success  bool   `json:"success"`
}

// Provider acknowledgment envelopes. Each provider retries until it sees its
// own success shape, so these are part of the wire contract, not cosmetics.

type VnpayWebhookResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type MomoWebhookResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
}

type PayosWebhookResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}
