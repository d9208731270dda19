package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

func testMomoConfig(createURL, refundURL string) MomoConfig {
	return MomoConfig{
		PartnerCode:    "MOMOATL",
		AccessKey:      "access-key",
		SecretKey:      "momo-secret",
		CreateEndpoint: createURL,
		RefundEndpoint: refundURL,
		IpnURL:         "https://shop.example/webhooks/momo",
		ReturnURL:      "https://shop.example/return",
	}
}

func signedMomoPayload(t *testing.T, secret string, fields map[string]string) []byte {
	t.Helper()
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["signature"] = signedSortedQuery(secret, fields)

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func TestMomoBuildIntentSignsCreateRequest(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("decode create request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"resultCode": 0,
			"payUrl":     "https://test-payment.momo.vn/pay/abc",
		})
	}))
	defer server.Close()

	p := NewMomoProvider(testMomoConfig(server.URL, server.URL))
	output, err := p.BuildIntent(context.Background(), &IntentInput{
		IntentID:    "intent-1",
		OrderNo:     "ATL-1",
		AmountCents: 250_000,
	})
	if err != nil {
		t.Fatalf("build intent failed: %v", err)
	}
	if output.InitialStatus != entity.IntentStatusPending {
		t.Fatalf("expected pending status, got %s", output.InitialStatus)
	}
	if output.RedirectURL == nil || *output.RedirectURL != "https://test-payment.momo.vn/pay/abc" {
		t.Fatalf("unexpected redirect: %v", output.RedirectURL)
	}

	rawSignature := "accessKey=access-key" +
		"&amount=250000" +
		"&extraData=" +
		"&ipnUrl=https://shop.example/webhooks/momo" +
		"&orderId=intent-1" +
		"&orderInfo=Thanh toan don hang ATL-1" +
		"&partnerCode=MOMOATL" +
		"&redirectUrl=https://shop.example/return" +
		"&requestId=" + received["requestId"].(string) +
		"&requestType=payWithATM"
	if received["signature"] != hmacSHA256Hex("momo-secret", []byte(rawSignature)) {
		t.Fatal("create request signature does not match the documented field order")
	}
}

func TestMomoBuildIntentNonZeroResultCodeFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"resultCode": 41,
			"message":    "order already exists",
		})
	}))
	defer server.Close()

	p := NewMomoProvider(testMomoConfig(server.URL, server.URL))
	_, err := p.BuildIntent(context.Background(), &IntentInput{IntentID: "intent-1", AmountCents: 1000})
	if err == nil {
		t.Fatal("expected error for non-zero result code")
	}
}

func TestMomoVerifyWebhookRoundTrip(t *testing.T) {
	p := NewMomoProvider(testMomoConfig("", ""))
	payload := signedMomoPayload(t, "momo-secret", map[string]string{
		"orderId":    "intent-1",
		"amount":     "250000",
		"resultCode": "0",
		"transId":    "2588659987",
	})

	if !p.VerifyWebhook(payload) {
		t.Fatal("expected valid signature to verify")
	}

	tampered := signedMomoPayload(t, "wrong-secret", map[string]string{
		"orderId": "intent-1", "amount": "250000", "resultCode": "0",
	})
	if p.VerifyWebhook(tampered) {
		t.Fatal("expected signature from another key to fail")
	}
}

func TestMomoParseWebhook(t *testing.T) {
	p := NewMomoProvider(testMomoConfig("", ""))
	payload := signedMomoPayload(t, "momo-secret", map[string]string{
		"orderId":    "intent-1",
		"amount":     "250000",
		"resultCode": "0",
		"transId":    "2588659987",
	})

	event, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	if event.ExternalRef != "intent-1" || !event.Success || event.AmountCents != 250_000 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.TransactionID != "2588659987" {
		t.Fatalf("unexpected transaction id: %s", event.TransactionID)
	}
}

func TestMomoParseWebhookNumericFieldsKeepWireForm(t *testing.T) {
	p := NewMomoProvider(testMomoConfig("", ""))
	// amount and resultCode arrive as JSON numbers on the real IPN.
	payload := []byte(`{"orderId":"intent-1","amount":250000,"resultCode":0,"transId":2588659987}`)

	event, err := p.ParseWebhook(payload)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	if !event.Success || event.AmountCents != 250_000 || event.TransactionID != "2588659987" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestMomoRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		if req["transId"] != "2588659987" {
			t.Errorf("expected transId in refund request, got %v", req["transId"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"resultCode": 0,
			"transId":    9999,
		})
	}))
	defer server.Close()

	p := NewMomoProvider(testMomoConfig(server.URL, server.URL))
	output, err := p.Refund(context.Background(), &RefundInput{
		RefundID:      "refund-1",
		TransactionID: "2588659987",
		AmountCents:   250_000,
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !output.Success {
		t.Fatal("expected refund success")
	}
	if output.ProviderRefundID == nil || *output.ProviderRefundID != "9999" {
		t.Fatalf("unexpected provider refund id: %v", output.ProviderRefundID)
	}
}

func TestMomoRefundRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"resultCode": 1001,
			"message":    "transaction not eligible",
		})
	}))
	defer server.Close()

	p := NewMomoProvider(testMomoConfig(server.URL, server.URL))
	output, err := p.Refund(context.Background(), &RefundInput{RefundID: "refund-1", TransactionID: "1", AmountCents: 1000})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if output.Success {
		t.Fatal("expected refund rejection")
	}
}
