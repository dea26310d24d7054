// Package profiles serves the per-user marketplace dashboard.
package profiles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type statusCount struct {
	Status enums.OrderStatus `gorm:"column:status"`
	Count  int64             `gorm:"column:count"`
}

// Repository reads dashboard aggregates. It never writes profile counters.
type Repository interface {
	FindProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	SellerStatusCounts(ctx context.Context, sellerID uuid.UUID) (map[enums.OrderStatus]int64, error)
	BuyerOrderCount(ctx context.Context, buyerID uuid.UUID, statuses []enums.OrderStatus) (int64, error)
	BuyerAmounts(ctx context.Context, buyerID uuid.UUID, status enums.OrderStatus) ([]decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindProfile returns nil without error for users the rollup has not reached.
func (r *repository) FindProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) SellerStatusCounts(ctx context.Context, sellerID uuid.UUID) (map[enums.OrderStatus]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Table("orders").
		Select("orders.status AS status, COUNT(*) AS count").
		Joins("JOIN gigs ON gigs.id = orders.gig_id").
		Where("gigs.seller_id = ?", sellerID).
		Group("orders.status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.OrderStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *repository) BuyerOrderCount(ctx context.Context, buyerID uuid.UUID, statuses []enums.OrderStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("buyer_id = ? AND status IN ?", buyerID, statuses).
		Count(&count).Error
	return count, err
}

// BuyerAmounts returns order amounts so they can be summed exactly in Go.
func (r *repository) BuyerAmounts(ctx context.Context, buyerID uuid.UUID, status enums.OrderStatus) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("buyer_id = ? AND status = ?", buyerID, status).
		Pluck("amount", &amounts).Error
	return amounts, err
}
