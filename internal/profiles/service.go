package profiles

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

var buyerActiveStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusInProgress,
	enums.OrderStatusDelivered,
}

// Dashboard summarizes a user's activity on both sides of the marketplace.
type Dashboard struct {
	TotalEarnings        decimal.Decimal `json:"total_earnings"`
	TotalOrdersCompleted int             `json:"total_orders_completed"`
	AverageRating        decimal.Decimal `json:"average_rating"`
	TotalGigs            int64           `json:"total_gigs"`
	PendingOrders        int64           `json:"pending_orders"`
	InProgressOrders     int64           `json:"in_progress_orders"`
	DeliveredOrders      int64           `json:"delivered_orders"`
	CompletedOrders      int64           `json:"completed_orders"`
	ActivePurchases      int64           `json:"active_purchases"`
	TotalSpent           decimal.Decimal `json:"total_spent"`
}

type Service interface {
	Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error)
}

type service struct {
	repo Repository
	gigs gigs.Repository
}

func NewService(repo Repository, gigRepo gigs.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if gigRepo == nil {
		return nil, fmt.Errorf("gigs repository required")
	}
	return &service{repo: repo, gigs: gigRepo}, nil
}

func (s *service) Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	out := &Dashboard{
		TotalEarnings: decimal.Zero,
		AverageRating: decimal.Zero,
		TotalSpent:    decimal.Zero,
	}

	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if profile != nil {
		out.TotalEarnings = profile.TotalEarnings
		out.TotalOrdersCompleted = profile.TotalOrdersCompleted
		out.AverageRating = profile.AverageRating
	}

	if out.TotalGigs, err = s.gigs.CountBySeller(ctx, userID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count gigs")
	}

	counts, err := s.repo.SellerStatusCounts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count seller orders")
	}
	out.PendingOrders = counts[enums.OrderStatusPending]
	out.InProgressOrders = counts[enums.OrderStatusInProgress]
	out.DeliveredOrders = counts[enums.OrderStatusDelivered]
	out.CompletedOrders = counts[enums.OrderStatusCompleted]

	if out.ActivePurchases, err = s.repo.BuyerOrderCount(ctx, userID, buyerActiveStatuses); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count purchases")
	}

	amounts, err := s.repo.BuyerAmounts(ctx, userID, enums.OrderStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum purchases")
	}
	out.TotalSpent = decimal.Sum(decimal.Zero, amounts...).Round(2)
	return out, nil
}
