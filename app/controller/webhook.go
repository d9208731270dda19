package controller

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/audiotailoc/ms-go-payments/app/factory"
	"github.com/audiotailoc/ms-go-payments/app/service"
	"github.com/audiotailoc/ms-go-payments/app/types"
)

// WebhookController terminates provider webhook deliveries. Each provider
// keeps retrying until it reads its own acknowledgement envelope, so the
// response shape depends on who is calling, not on our internal result.
type WebhookController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewWebhookController(paymentService *service.PaymentService) *WebhookController {
	return &WebhookController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("webhooks-controller"),
	}
}

func (c *WebhookController) HandleWebhook(ctx echo.Context) error {
	providerSlug := strings.ToLower(strings.TrimSpace(ctx.Param("provider")))

	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.writeAck(ctx, providerSlug, &service.ReconcileResult{
			Outcome: service.ReconcileRejected,
			Reason:  service.ErrMalformedPayload,
		})
	}

	result, err := c.paymentService.ReconcileWebhook(ctx.Request().Context(), providerSlug, payload)
	if err != nil {
		if errors.Is(err, service.ErrProviderUnsupported) {
			return ctx.JSON(http.StatusNotFound, &types.ErrorResponse{Error: "provider is not supported"})
		}
		// Persistence failed before a receipt was committed. Answer with a
		// retryable status so the provider redelivers.
		factory.LoggerWithContext(c.logger, ctx).WithError(err).WithField("provider", providerSlug).Error("Webhook reconcile failed")
		return ctx.JSON(http.StatusInternalServerError, &types.ErrorResponse{Error: "internal server error"})
	}

	return c.writeAck(ctx, providerSlug, result)
}

func (c *WebhookController) writeAck(ctx echo.Context, providerSlug string, result *service.ReconcileResult) error {
	switch providerSlug {
	case types.ProviderTypeVnpay.Slug():
		return ctx.JSON(http.StatusOK, vnpayAck(result))
	case types.ProviderTypeMomo.Slug():
		return ctx.JSON(http.StatusOK, momoAck(result))
	case types.ProviderTypePayos.Slug():
		return ctx.JSON(http.StatusOK, payosAck(result))
	default:
		return ctx.JSON(http.StatusNotFound, &types.ErrorResponse{Error: "provider is not supported"})
	}
}

func vnpayAck(result *service.ReconcileResult) *types.VnpayWebhookResponse {
	if result.Outcome != service.ReconcileRejected {
		return &types.VnpayWebhookResponse{RspCode: "00", Message: "Confirm Success"}
	}

	switch {
	case errors.Is(result.Reason, service.ErrSignatureInvalid):
		return &types.VnpayWebhookResponse{RspCode: "97", Message: "Invalid Checksum"}
	case errors.Is(result.Reason, service.ErrUnknownIntent):
		return &types.VnpayWebhookResponse{RspCode: "01", Message: "Order Not Found"}
	default:
		return &types.VnpayWebhookResponse{RspCode: "99", Message: "Invalid Request"}
	}
}

func momoAck(result *service.ReconcileResult) *types.MomoWebhookResponse {
	if result.Outcome != service.ReconcileRejected {
		return &types.MomoWebhookResponse{ResultCode: 0, Message: "Success"}
	}

	switch {
	case errors.Is(result.Reason, service.ErrSignatureInvalid):
		return &types.MomoWebhookResponse{ResultCode: 1, Message: "Invalid signature"}
	case errors.Is(result.Reason, service.ErrUnknownIntent):
		return &types.MomoWebhookResponse{ResultCode: 1, Message: "Order not found"}
	default:
		return &types.MomoWebhookResponse{ResultCode: 1, Message: "Invalid request"}
	}
}

func payosAck(result *service.ReconcileResult) *types.PayosWebhookResponse {
	if result.Outcome != service.ReconcileRejected {
		return &types.PayosWebhookResponse{Error: 0, Message: "Payment processed"}
	}

	switch {
	case errors.Is(result.Reason, service.ErrSignatureInvalid):
		return &types.PayosWebhookResponse{Error: 1, Message: "Invalid signature"}
	case errors.Is(result.Reason, service.ErrUnknownIntent):
		return &types.PayosWebhookResponse{Error: 1, Message: "Order not found"}
	default:
		return &types.PayosWebhookResponse{Error: 1, Message: "Invalid request"}
	}
}
