package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/entity"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/factory"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/service"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/types"
)

func (c *PaymentController) StripeWebhook(ctx echo.Context) error {
	return c.handleWebhook(ctx, entity.ProviderStripe)
}

func (c *PaymentController) YooKassaWebhook(ctx echo.Context) error {
	return c.handleWebhook(ctx, entity.ProviderYooKassa)
}

// handleWebhook answers 2xx only once the event is durably recorded; any 5xx asks the provider to redeliver.
func (c *PaymentController) handleWebhook(ctx echo.Context, providerCode string) error {
	req, err := types.NewHandleWebhookRequestFromContext(ctx, providerCode)
	if err != nil {
		if errors.Is(err, types.ErrWebhookPayloadTooLarge) {
			return c.writeError(ctx, http.StatusRequestEntityTooLarge, err.Error())
		}
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	_, err = c.paymentService.HandleWebhook(ctx.Request().Context(), req.Provider, req.Payload, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookSignatureInvalid):
			return c.writeError(ctx, http.StatusUnauthorized, err.Error())
		case errors.Is(err, service.ErrInvalidWebhookPayload), errors.Is(err, service.ErrMissingTransactionID), errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTransactionNotFound), errors.Is(err, service.ErrWebhookCorrelation):
			return c.writeError(ctx, http.StatusNotFound, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).WithField("provider", providerCode).Error("Webhook processing failed")
			return c.writeError(ctx, http.StatusInternalServerError, "webhook processing failed")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
}
