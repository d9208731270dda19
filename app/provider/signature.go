package provider

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
)

func hmacSHA256Hex(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalDigests compares two hex digests without leaking a timing side
// channel on the match position.
func equalDigests(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(strings.ToLower(b))) == 1
}

// decodeWebhookFields flattens a JSON object payload into string values the
// way the providers' signing scheme expects: numbers keep their wire form,
// booleans and null are their literal text. Nested values have no place in
// these payloads and make the payload malformed.
func decodeWebhookFields(payload []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, ErrMalformedPayload
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = strconv.FormatBool(v)
		case nil:
			fields[key] = "null"
		default:
			return nil, ErrMalformedPayload
		}
	}
	return fields, nil
}

// signedSortedQuery joins the fields as key=value&key=value in lexicographic
// key order and returns the HMAC-SHA256 hex digest. This is the VNPAY/MOMO
// canonical form.
func signedSortedQuery(secret string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+fields[key])
	}
	return hmacSHA256Hex(secret, []byte(strings.Join(parts, "&")))
}

// payosSignedPayload re-serializes the payload object minus its signature
// field, preserving the top-level key order as received. PAYOS signs the
// insertion-order JSON string, so re-encoding through a Go map would break
// verification; this is the one place to change if PAYOS documents a sorted
// canonical form instead.
func payosSignedPayload(payload []byte) ([]byte, string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))

	tok, err := dec.Token()
	if err != nil {
		return nil, "", ErrMalformedPayload
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, "", ErrMalformedPayload
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	signature := ""

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, "", ErrMalformedPayload
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, "", ErrMalformedPayload
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, "", ErrMalformedPayload
		}

		if key == "signature" {
			if err := json.Unmarshal(value, &signature); err != nil {
				return nil, "", ErrMalformedPayload
			}
			continue
		}

		if !first {
			buf.WriteByte(',')
		}
		first = false

		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, "", err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		if err := json.Compact(&buf, value); err != nil {
			return nil, "", ErrMalformedPayload
		}
	}
	buf.WriteByte('}')

	return buf.Bytes(), signature, nil
}

// parseAmountCents rejects anything that is not an integral amount. A
// webhook carrying a garbage amount must fail loudly instead of recording a
// zero-value payment.
func parseAmountCents(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("amount is empty")
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("amount is not an integer")
	}
	if amount <= 0 {
		return 0, errors.New("amount must be positive")
	}
	return amount, nil
}
