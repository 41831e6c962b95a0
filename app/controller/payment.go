package controller

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/auth"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/factory"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/service"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
	now            func() time.Time
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("payments-controller"),
		now:            time.Now,
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreatePayment(ctx echo.Context) error {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return c.writeError(ctx, http.StatusUnauthorized, "unauthorized")
	}

	req, err := types.NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.CreatePayment(ctx.Request().Context(), userID, req)
	if err != nil {
		var rateErr *service.RateLimitError
		switch {
		case errors.As(err, &rateErr):
			return c.writeRateLimited(ctx, rateErr)
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidIdempotencyKey), errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrIdempotencyKeyConflict):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrWalletNotFound):
			return c.writeError(ctx, http.StatusNotFound, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.CreatePaymentResultToResponse(result))
}

// GetMyTransaction serves the bearer-authenticated owner view.
func (c *PaymentController) GetMyTransaction(ctx echo.Context) error {
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return c.writeError(ctx, http.StatusUnauthorized, "unauthorized")
	}

	req, err := types.NewGetTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetUserTransaction(ctx.Request().Context(), userID, req.GetId())
	if err != nil {
		return c.writeReadError(ctx, err, "Get user transaction failed")
	}

	return ctx.JSON(http.StatusOK, &types.TransactionResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *PaymentController) GetTransaction(ctx echo.Context) error {
	req, err := types.NewGetTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetTransaction(ctx.Request().Context(), req.GetId())
	if err != nil {
		return c.writeReadError(ctx, err, "Get transaction failed")
	}

	return ctx.JSON(http.StatusOK, &types.TransactionResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *PaymentController) ListTransactions(ctx echo.Context) error {
	req, err := types.NewListTransactionsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListTransactions(ctx.Request().Context(), req)
	if err != nil {
		return c.writeReadError(ctx, err, "List transactions failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListTransactionsResponse{Transactions: mapper.TransactionsToResponse(items)})
}

func (c *PaymentController) writeReadError(ctx echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrTransactionNotFound):
		return c.writeError(ctx, http.StatusNotFound, "transaction not found")
	case errors.Is(err, service.ErrInvalidRequest):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *PaymentController) writeRateLimited(ctx echo.Context, rateErr *service.RateLimitError) error {
	retryAfter := int64(math.Ceil(rateErr.ResetAt.Sub(c.now()).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	ctx.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	return ctx.JSON(http.StatusTooManyRequests, &types.RateLimitErrorResponse{
		Error:   service.ErrRateLimited.Error(),
		ResetAt: rateErr.ResetAt.UTC().Format(time.RFC3339),
	})
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
