package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/audiotailoc/ms-go-payments/app/entity"
	"github.com/audiotailoc/ms-go-payments/app/types"
)

type PayosConfig struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	PartnerCode string
	APIURL      string
	ReturnURL   string
	HTTPTimeout time.Duration
}

// PayosProvider creates PAYOS checkout sessions and verifies their
// webhooks. PAYOS signs the insertion-order JSON serialization of the
// payload minus the signature field, so both signing and verification work
// on ordered byte streams, never on decoded maps.
type PayosProvider struct {
	cfg    PayosConfig
	client *http.Client
}

func NewPayosProvider(cfg PayosConfig) *PayosProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = "https://api.payos.vn"
	}
	return &PayosProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *PayosProvider) Code() int32 {
	return int32(types.ProviderTypePayos)
}

func (p *PayosProvider) Slug() string {
	return "payos"
}

// payosCheckoutRequest field order matches what PAYOS expects to be signed;
// struct marshaling preserves it.
type payosCheckoutRequest struct {
	OrderCode   string             `json:"orderCode"`
	Amount      int64              `json:"amount"`
	Currency    string             `json:"currency"`
	ReturnURL   string             `json:"returnUrl"`
	CancelURL   string             `json:"cancelUrl"`
	Description string             `json:"description"`
	Items       []payosInvoiceItem `json:"items"`
	PartnerCode string             `json:"partnerCode,omitempty"`
}

type payosInvoiceItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

func (p *PayosProvider) BuildIntent(ctx context.Context, input *IntentInput) (*IntentOutput, error) {
	if strings.TrimSpace(p.cfg.ChecksumKey) == "" {
		return nil, errors.New("payos checksum key is not configured")
	}

	returnURL := strings.TrimSpace(input.ReturnURL)
	if returnURL == "" {
		returnURL = p.cfg.ReturnURL
	}

	checkout := payosCheckoutRequest{
		OrderCode:   input.IntentID,
		Amount:      input.AmountCents,
		Currency:    "VND",
		ReturnURL:   returnURL,
		CancelURL:   returnURL,
		Description: "Thanh toan don hang " + input.OrderNo,
		Items: []payosInvoiceItem{
			{Name: "Audio Tai Loc", Quantity: 1, Price: input.AmountCents},
		},
		PartnerCode: strings.TrimSpace(p.cfg.PartnerCode),
	}

	payload, err := json.Marshal(checkout)
	if err != nil {
		return nil, err
	}
	signature := hmacSHA256Hex(p.cfg.ChecksumKey, payload)

	// Append the signature onto the signed bytes so the request body is the
	// exact object that was signed plus one trailing field.
	body := append(payload[:len(payload)-1], []byte(`,"signature":"`+signature+`"}`)...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL+"/v2/checkout/create", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", p.cfg.ClientID)
	req.Header.Set("x-api-key", p.cfg.APIKey)
	if strings.TrimSpace(p.cfg.PartnerCode) != "" {
		req.Header.Set("x-partner-code", p.cfg.PartnerCode)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("payos checkout create failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var result struct {
		CheckoutURL string `json:"checkoutUrl"`
		Data        struct {
			CheckoutURL string `json:"checkoutUrl"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	checkoutURL := strings.TrimSpace(result.Data.CheckoutURL)
	if checkoutURL == "" {
		checkoutURL = strings.TrimSpace(result.CheckoutURL)
	}
	if checkoutURL == "" {
		return nil, errors.New("payos checkout url missing from response")
	}

	return &IntentOutput{
		RedirectURL:   &checkoutURL,
		InitialStatus: entity.IntentStatusPending,
	}, nil
}

func (p *PayosProvider) VerifyWebhook(payload []byte) bool {
	if strings.TrimSpace(p.cfg.ChecksumKey) == "" {
		return false
	}

	signed, supplied, err := payosSignedPayload(payload)
	if err != nil {
		return false
	}

	return equalDigests(supplied, hmacSHA256Hex(p.cfg.ChecksumKey, signed))
}

func (p *PayosProvider) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	fields, err := decodeWebhookFields(payload)
	if err != nil {
		return nil, err
	}

	externalRef := strings.TrimSpace(fields["orderCode"])
	if externalRef == "" {
		return nil, ErrMalformedPayload
	}
	amount, err := parseAmountCents(fields["amount"])
	if err != nil {
		return nil, ErrMalformedPayload
	}

	return &WebhookEvent{
		ExternalRef:   externalRef,
		Success:       fields["status"] == "PAID",
		AmountCents:   amount,
		TransactionID: strings.TrimSpace(fields["transactionId"]),
	}, nil
}

// Refund accepts synchronously; PAYOS refunds are reconciled out of band.
func (p *PayosProvider) Refund(_ context.Context, input *RefundInput) (*RefundOutput, error) {
	refundID := "payos_" + input.RefundID
	return &RefundOutput{Success: true, ProviderRefundID: &refundID}, nil
}
