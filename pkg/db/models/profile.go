package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile holds per-user marketplace aggregates.
type Profile struct {
	UserID               uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey"`
	DisplayName          string          `gorm:"column:display_name;not null;default:''"`
	StripeAccountID      *string         `gorm:"column:stripe_account_id"`
	TotalEarnings        decimal.Decimal `gorm:"column:total_earnings;type:numeric(12,2);not null;default:0"`
	TotalOrdersCompleted int             `gorm:"column:total_orders_completed;not null;default:0"`
	AverageRating        decimal.Decimal `gorm:"column:average_rating;type:numeric(3,2);not null;default:0"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
