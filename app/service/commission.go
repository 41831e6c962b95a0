package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-wallet-payments/app/factory"
	"github.com/vibast-solutions/ms-go-wallet-payments/app/repository"
)

var hundred = decimal.NewFromInt(100)

type commissionPolicyRepository interface {
	FindPercent(ctx context.Context, operationType string) (string, error)
}

type CommissionService struct {
	policies       commissionPolicyRepository
	defaultPercent decimal.Decimal
	logger         logrus.FieldLogger
}

// NewCommissionService falls back to 7% when defaultPercent is not a valid rate.
func NewCommissionService(policies commissionPolicyRepository, defaultPercent string) *CommissionService {
	percent, ok := parsePercent(defaultPercent)
	if !ok {
		percent = decimal.NewFromInt(7)
	}

	return &CommissionService{
		policies:       policies,
		defaultPercent: percent,
		logger:         factory.NewModuleLogger("commission-service"),
	}
}

// Calculate returns floor(amount * percent / 100) and the percent it used.
func (s *CommissionService) Calculate(ctx context.Context, operationType string, amount int64) (int64, string) {
	percent := s.lookupPercent(ctx, operationType)
	commission := decimal.NewFromInt(amount).Mul(percent).Div(hundred).Floor()
	return commission.IntPart(), percent.String()
}

func (s *CommissionService) lookupPercent(ctx context.Context, operationType string) decimal.Decimal {
	if s.policies == nil {
		return s.defaultPercent
	}

	raw, err := s.policies.FindPercent(ctx, operationType)
	if err != nil {
		if !errors.Is(err, repository.ErrCommissionPolicyNotFound) {
			s.logger.WithError(err).WithField("operation_type", operationType).Warn("Commission policy lookup failed, using default rate")
		}
		return s.defaultPercent
	}

	percent, ok := parsePercent(raw)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"operation_type": operationType,
			"percent":        raw,
		}).Warn("Commission policy holds an invalid rate, using default rate")
		return s.defaultPercent
	}
	return percent
}

func parsePercent(raw string) (decimal.Decimal, bool) {
	percent, err := decimal.NewFromString(raw)
	if err != nil || percent.IsNegative() || percent.GreaterThan(hundred) {
		return decimal.Zero, false
	}
	return percent, true
}
