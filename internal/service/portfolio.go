package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"evotrade/internal/repository"
)

// PortfolioService marks the account to market. Decimal end to end; the
// float summary endpoint uses the repository aggregate instead.
type PortfolioService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

type PortfolioView struct {
	AccountID     string
	Cash          decimal.Decimal
	PositionValue decimal.Decimal
	Equity        decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	OpenPositions int
	AsOf          time.Time
}

func (s *PortfolioService) View(ctx context.Context, accountID string, now time.Time) (*PortfolioView, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	acct, err := s.Repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s not found", accountID)
	}

	positions, err := s.Repo.ListOpenPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	prices, err := s.Repo.ListMarketPricesBySymbols(ctx, symbols)
	if err != nil {
		return nil, err
	}
	marks := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		marks[p.Symbol] = p.Price
	}

	positionValue := decimal.Zero
	costBasis := decimal.Zero
	for _, p := range positions {
		mark, ok := marks[p.Symbol]
		if !ok {
			mark = p.AvgEntryPrice
		}
		positionValue = positionValue.Add(p.Quantity.Mul(mark))
		costBasis = costBasis.Add(p.CostBasis)
	}

	// Cash identity: current = starting + realized - open cost basis, so
	// total realized (closed rows included) falls out without another scan.
	realized := acct.CurrentCash.Sub(acct.StartingCash).Add(costBasis)

	return &PortfolioView{
		AccountID:     accountID,
		Cash:          acct.CurrentCash,
		PositionValue: positionValue,
		Equity:        acct.CurrentCash.Add(positionValue),
		UnrealizedPnL: positionValue.Sub(costBasis),
		RealizedPnL:   realized,
		OpenPositions: len(positions),
		AsOf:          now,
	}, nil
}

// Equity is the governor's day-start baseline source.
func (s *PortfolioService) Equity(ctx context.Context, accountID string, now time.Time) (decimal.Decimal, error) {
	view, err := s.View(ctx, accountID, now)
	if err != nil {
		return decimal.Zero, err
	}
	if view == nil {
		return decimal.Zero, nil
	}
	return view.Equity, nil
}
