package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type ProviderType int32

const (
	ProviderTypeUnspecified ProviderType = 0
	ProviderTypeVnpay       ProviderType = 1
	ProviderTypeMomo        ProviderType = 2
	ProviderTypePayos       ProviderType = 3
	ProviderTypeCod         ProviderType = 4
)

func (p ProviderType) Slug() string {
	switch p {
	case ProviderTypeVnpay:
		return "vnpay"
	case ProviderTypeMomo:
		return "momo"
	case ProviderTypePayos:
		return "payos"
	case ProviderTypeCod:
		return "cod"
	default:
		return ""
	}
}

// ParseProviderType accepts both the slug and the numeric code, matching how
// callers address providers in URLs and request bodies.
func ParseProviderType(raw string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "vnpay", "1":
		return ProviderTypeVnpay, nil
	case "momo", "2":
		return ProviderTypeMomo, nil
	case "payos", "3":
		return ProviderTypePayos, nil
	case "cod", "4":
		return ProviderTypeCod, nil
	default:
		return ProviderTypeUnspecified, errors.New("invalid provider")
	}
}

const minIdempotencyKeyLength = 8

type CreateIntentRequest struct {
	OrderId        string `json:"order_id"`
	Provider       string `json:"provider"`
	IdempotencyKey string `json:"idempotency_key"`
	ReturnUrl      string `json:"return_url"`
}

func NewCreateIntentRequestFromContext(ctx echo.Context) (*CreateIntentRequest, error) {
	var body CreateIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.OrderId = strings.TrimSpace(body.OrderId)
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	body.IdempotencyKey = strings.TrimSpace(body.IdempotencyKey)
	body.ReturnUrl = strings.TrimSpace(body.ReturnUrl)

	return &body, nil
}

func (r *CreateIntentRequest) Validate() error {
	if r.OrderId == "" {
		return errors.New("order_id is required")
	}
	if _, err := ParseProviderType(r.Provider); err != nil {
		return errors.New("provider must be vnpay, momo, payos, or cod")
	}
	if len(r.IdempotencyKey) < minIdempotencyKeyLength {
		return errors.New("idempotency_key must be at least 8 characters")
	}
	return nil
}

type GetIntentRequest struct {
	Id string
}

func NewGetIntentRequestFromContext(ctx echo.Context) (*GetIntentRequest, error) {
	return &GetIntentRequest{Id: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetIntentRequest) Validate() error {
	if r.Id == "" {
		return errors.New("invalid intent id")
	}
	return nil
}

type CreateRefundRequest struct {
	PaymentId   uint64 `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func NewCreateRefundRequestFromContext(ctx echo.Context) (*CreateRefundRequest, error) {
	var body CreateRefundRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if body.PaymentId == 0 {
		if raw := strings.TrimSpace(ctx.Param("id")); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, err
			}
			body.PaymentId = id
		}
	}
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *CreateRefundRequest) Validate() error {
	if r.PaymentId == 0 {
		return errors.New("payment_id is required")
	}
	if r.AmountCents < 0 {
		return errors.New("amount_cents must be >= 0")
	}
	return nil
}
