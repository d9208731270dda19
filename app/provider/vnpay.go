package provider

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/audiotailoc/ms-go-payments/app/entity"
	"github.com/audiotailoc/ms-go-payments/app/types"
)

type VnpayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// VnpayProvider builds the hosted-payment redirect and verifies VNPAY IPN
// callbacks. VNPAY signs the lexicographically sorted key=value join of all
// fields except vnp_SecureHash.
type VnpayProvider struct {
	cfg VnpayConfig
}

func NewVnpayProvider(cfg VnpayConfig) *VnpayProvider {
	if strings.TrimSpace(cfg.PayURL) == "" {
		cfg.PayURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	}
	return &VnpayProvider{cfg: cfg}
}

func (p *VnpayProvider) Code() int32 {
	return int32(types.ProviderTypeVnpay)
}

func (p *VnpayProvider) Slug() string {
	return "vnpay"
}

func (p *VnpayProvider) BuildIntent(_ context.Context, input *IntentInput) (*IntentOutput, error) {
	if strings.TrimSpace(p.cfg.HashSecret) == "" {
		return nil, errors.New("vnpay hash secret is not configured")
	}

	returnURL := strings.TrimSpace(input.ReturnURL)
	if returnURL == "" {
		returnURL = p.cfg.ReturnURL
	}

	params := map[string]string{
		"vnp_Amount":    strconv.FormatInt(input.AmountCents, 10),
		"vnp_TmnCode":   p.cfg.TmnCode,
		"vnp_TxnRef":    input.IntentID,
		"vnp_ReturnUrl": returnURL,
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+params[key])
	}
	signData := strings.Join(parts, "&")
	secureHash := hmacSHA256Hex(p.cfg.HashSecret, []byte(signData))

	redirect := p.cfg.PayURL + "?" + signData + "&vnp_SecureHash=" + secureHash
	return &IntentOutput{
		RedirectURL:   &redirect,
		InitialStatus: entity.IntentStatusPending,
	}, nil
}

func (p *VnpayProvider) VerifyWebhook(payload []byte) bool {
	if strings.TrimSpace(p.cfg.HashSecret) == "" {
		return false
	}

	fields, err := decodeWebhookFields(payload)
	if err != nil {
		return false
	}
	supplied := fields["vnp_SecureHash"]
	delete(fields, "vnp_SecureHash")

	return equalDigests(supplied, signedSortedQuery(p.cfg.HashSecret, fields))
}

func (p *VnpayProvider) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	fields, err := decodeWebhookFields(payload)
	if err != nil {
		return nil, err
	}

	externalRef := strings.TrimSpace(fields["vnp_TxnRef"])
	if externalRef == "" {
		return nil, ErrMalformedPayload
	}
	amount, err := parseAmountCents(fields["vnp_Amount"])
	if err != nil {
		return nil, ErrMalformedPayload
	}

	return &WebhookEvent{
		ExternalRef:   externalRef,
		Success:       fields["vnp_ResponseCode"] == "00",
		AmountCents:   amount,
		TransactionID: strings.TrimSpace(fields["vnp_TransactionNo"]),
	}, nil
}

// Refund accepts synchronously. VNPAY refunds are settled through the
// merchant portal; the coordinator records the accepted refund locally.
func (p *VnpayProvider) Refund(_ context.Context, input *RefundInput) (*RefundOutput, error) {
	refundID := "vnpay_" + input.RefundID
	return &RefundOutput{Success: true, ProviderRefundID: &refundID}, nil
}
