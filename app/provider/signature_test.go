package provider

import (
	"errors"
	"testing"
)

func TestDecodeWebhookFieldsKeepsWireForms(t *testing.T) {
	fields, err := decodeWebhookFields([]byte(`{"a":"text","b":250000,"c":0.5,"d":true,"e":null}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	expected := map[string]string{"a": "text", "b": "250000", "c": "0.5", "d": "true", "e": "null"}
	for key, want := range expected {
		if fields[key] != want {
			t.Fatalf("field %s: expected %q, got %q", key, want, fields[key])
		}
	}
}

func TestDecodeWebhookFieldsRejectsNestedValues(t *testing.T) {
	if _, err := decodeWebhookFields([]byte(`{"a":{"nested":1}}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for nested object, got %v", err)
	}
	if _, err := decodeWebhookFields([]byte(`{"a":[1,2]}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for array, got %v", err)
	}
	if _, err := decodeWebhookFields([]byte(`not json`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for invalid json, got %v", err)
	}
}

func TestSignedSortedQueryIsOrderInsensitive(t *testing.T) {
	a := signedSortedQuery("secret", map[string]string{"b": "2", "a": "1", "c": "3"})
	b := signedSortedQuery("secret", map[string]string{"c": "3", "a": "1", "b": "2"})
	if a != b {
		t.Fatal("expected identical digests regardless of map iteration order")
	}
	if a == signedSortedQuery("other", map[string]string{"a": "1", "b": "2", "c": "3"}) {
		t.Fatal("expected different keys to produce different digests")
	}
}

func TestEqualDigests(t *testing.T) {
	digest := hmacSHA256Hex("secret", []byte("data"))
	if !equalDigests(digest, digest) {
		t.Fatal("expected digest to equal itself")
	}
	if !equalDigests(digest, toUpper(digest)) {
		t.Fatal("expected case-insensitive comparison")
	}
	if equalDigests(digest, "") || equalDigests("", digest) {
		t.Fatal("expected empty digest to never match")
	}
}

func toUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func TestParseAmountCents(t *testing.T) {
	amount, err := parseAmountCents("1500000")
	if err != nil || amount != 1_500_000 {
		t.Fatalf("expected 1500000, got %d err=%v", amount, err)
	}

	for _, raw := range []string{"", " ", "12.50", "-5", "0", "abc", "1e3"} {
		if _, err := parseAmountCents(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestPayosSignedPayloadStripsSignatureOnly(t *testing.T) {
	signed, signature, err := payosSignedPayload([]byte(`{"b":1,"signature":"abc","a":"x"}`))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if signature != "abc" {
		t.Fatalf("expected extracted signature, got %q", signature)
	}
	if string(signed) != `{"b":1,"a":"x"}` {
		t.Fatalf("expected order-preserving serialization, got %s", signed)
	}
}

func TestPayosSignedPayloadRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"text"`, `42`, `not json`} {
		if _, _, err := payosSignedPayload([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
