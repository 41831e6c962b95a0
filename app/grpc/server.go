package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/service"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/types"
)

type Server struct {
	types.UnimplementedPaymentsServiceServer
	paymentService *service.PaymentService
}

func NewServer(paymentService *service.PaymentService) *Server {
	return &Server{paymentService: paymentService}
}

func (s *Server) Health(_ context.Context, _ *types.HealthRequest) (*types.HealthResponse, error) {
	return &types.HealthResponse{Status: "ok"}, nil
}

// CreatePayment serves internal callers, which name the paying user explicitly.
func (s *Server) CreatePayment(ctx context.Context, req *types.CreatePaymentRequest) (*types.CreatePaymentResponse, error) {
	l := loggerWithContext(ctx)
	if req.GetUserId() == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	if err := req.Validate(); err != nil {
		l.WithError(err).Debug("Create payment validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.paymentService.CreatePayment(ctx, req.GetUserId(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimited):
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidIdempotencyKey), errors.Is(err, service.ErrProviderUnsupported):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, service.ErrIdempotencyKeyConflict):
			return nil, status.Error(codes.AlreadyExists, err.Error())
		case errors.Is(err, service.ErrWalletNotFound):
			return nil, status.Error(codes.NotFound, err.Error())
		default:
			l.WithError(err).Error("Create payment failed")
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	return mapper.CreatePaymentResultToResponse(result), nil
}

func (s *Server) GetTransaction(ctx context.Context, req *types.GetTransactionRequest) (*types.TransactionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.paymentService.GetTransaction(ctx, req.GetId())
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return nil, status.Error(codes.NotFound, "transaction not found")
		}
		loggerWithContext(ctx).WithError(err).Error("Get transaction failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return &types.TransactionResponse{Transaction: mapper.TransactionToResponse(item)}, nil
}

func (s *Server) ListTransactions(ctx context.Context, req *types.ListTransactionsRequest) (*types.ListTransactionsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	items, err := s.paymentService.ListTransactions(ctx, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		loggerWithContext(ctx).WithError(err).Error("List transactions failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return &types.ListTransactionsResponse{Transactions: mapper.TransactionsToResponse(items)}, nil
}
