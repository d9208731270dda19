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

type MomoConfig struct {
	PartnerCode    string
	AccessKey      string
	SecretKey      string
	CreateEndpoint string
	RefundEndpoint string
	IpnURL         string
	ReturnURL      string
	HTTPTimeout    time.Duration
}

// MomoProvider drives the MOMO create/refund APIs and verifies IPN
// callbacks. Request signatures use a documented fixed field order; webhook
// signatures use the sorted key=value join over all fields except signature.
type MomoProvider struct {
	cfg    MomoConfig
	client *http.Client
}

func NewMomoProvider(cfg MomoConfig) *MomoProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.CreateEndpoint) == "" {
		cfg.CreateEndpoint = "https://test-payment.momo.vn/v2/gateway/api/create"
	}
	if strings.TrimSpace(cfg.RefundEndpoint) == "" {
		cfg.RefundEndpoint = "https://test-payment.momo.vn/v2/gateway/api/refund"
	}
	return &MomoProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *MomoProvider) Code() int32 {
	return int32(types.ProviderTypeMomo)
}

func (p *MomoProvider) Slug() string {
	return "momo"
}

func (p *MomoProvider) BuildIntent(ctx context.Context, input *IntentInput) (*IntentOutput, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("momo secret key is not configured")
	}

	returnURL := strings.TrimSpace(input.ReturnURL)
	if returnURL == "" {
		returnURL = p.cfg.ReturnURL
	}

	requestID := fmt.Sprintf("%s_%d", input.IntentID, time.Now().UnixMilli())
	orderInfo := "Thanh toan don hang " + input.OrderNo
	requestType := "payWithATM"
	extraData := ""

	// Field order in the raw signature is fixed by the MOMO API contract.
	rawSignature := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		p.cfg.AccessKey, input.AmountCents, extraData, p.cfg.IpnURL, input.IntentID, orderInfo,
		p.cfg.PartnerCode, returnURL, requestID, requestType,
	)
	signature := hmacSHA256Hex(p.cfg.SecretKey, []byte(rawSignature))

	requestBody := map[string]interface{}{
		"partnerCode": p.cfg.PartnerCode,
		"accessKey":   p.cfg.AccessKey,
		"requestId":   requestID,
		"amount":      input.AmountCents,
		"orderId":     input.IntentID,
		"orderInfo":   orderInfo,
		"redirectUrl": returnURL,
		"ipnUrl":      p.cfg.IpnURL,
		"extraData":   extraData,
		"requestType": requestType,
		"signature":   signature,
		"lang":        "vi",
	}

	body, err := p.postJSON(ctx, p.cfg.CreateEndpoint, requestBody)
	if err != nil {
		return nil, err
	}

	var result struct {
		ResultCode int    `json:"resultCode"`
		Message    string `json:"message"`
		PayURL     string `json:"payUrl"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if result.ResultCode != 0 || strings.TrimSpace(result.PayURL) == "" {
		return nil, fmt.Errorf("momo payment creation failed: resultCode=%d message=%s", result.ResultCode, result.Message)
	}

	payURL := strings.TrimSpace(result.PayURL)
	return &IntentOutput{
		RedirectURL:   &payURL,
		InitialStatus: entity.IntentStatusPending,
	}, nil
}

func (p *MomoProvider) VerifyWebhook(payload []byte) bool {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return false
	}

	fields, err := decodeWebhookFields(payload)
	if err != nil {
		return false
	}
	supplied := fields["signature"]
	delete(fields, "signature")

	return equalDigests(supplied, signedSortedQuery(p.cfg.SecretKey, fields))
}

func (p *MomoProvider) ParseWebhook(payload []byte) (*WebhookEvent, error) {
	fields, err := decodeWebhookFields(payload)
	if err != nil {
		return nil, err
	}

	externalRef := strings.TrimSpace(fields["orderId"])
	if externalRef == "" {
		return nil, ErrMalformedPayload
	}
	amount, err := parseAmountCents(fields["amount"])
	if err != nil {
		return nil, ErrMalformedPayload
	}

	return &WebhookEvent{
		ExternalRef:   externalRef,
		Success:       fields["resultCode"] == "0",
		AmountCents:   amount,
		TransactionID: strings.TrimSpace(fields["transId"]),
	}, nil
}

func (p *MomoProvider) Refund(ctx context.Context, input *RefundInput) (*RefundOutput, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("momo secret key is not configured")
	}

	requestID := fmt.Sprintf("refund_%s_%d", input.RefundID, time.Now().UnixMilli())
	description := input.Reason
	if description == "" {
		description = "Refund request"
	}

	rawSignature := fmt.Sprintf(
		"accessKey=%s&amount=%d&description=%s&orderId=%s&partnerCode=%s&requestId=%s&transId=%s",
		p.cfg.AccessKey, input.AmountCents, description, input.TransactionID,
		p.cfg.PartnerCode, requestID, input.TransactionID,
	)
	signature := hmacSHA256Hex(p.cfg.SecretKey, []byte(rawSignature))

	requestBody := map[string]interface{}{
		"partnerCode": p.cfg.PartnerCode,
		"accessKey":   p.cfg.AccessKey,
		"requestId":   requestID,
		"amount":      input.AmountCents,
		"orderId":     input.TransactionID,
		"transId":     input.TransactionID,
		"description": description,
		"signature":   signature,
	}

	body, err := p.postJSON(ctx, p.cfg.RefundEndpoint, requestBody)
	if err != nil {
		return nil, err
	}

	var result struct {
		ResultCode int         `json:"resultCode"`
		Message    string      `json:"message"`
		TransID    json.Number `json:"transId"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if result.ResultCode != 0 {
		return &RefundOutput{Success: false}, nil
	}

	refundID := result.TransID.String()
	return &RefundOutput{Success: true, ProviderRefundID: &refundID}, nil
}

func (p *MomoProvider) postJSON(ctx context.Context, endpoint string, payload map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("momo request failed: endpoint=%s status=%d body=%s", endpoint, resp.StatusCode, string(body))
	}

	return body, nil
}
