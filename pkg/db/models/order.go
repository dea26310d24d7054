package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Order is a single purchase of a gig by a buyer. Amount and PlatformFee are
// fixed at creation.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GigID            uuid.UUID         `gorm:"column:gig_id;type:uuid;not null"`
	BuyerID          uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'payment_pending'"`
	Requirements     string            `gorm:"column:requirements;not null;default:''"`
	Amount           decimal.Decimal   `gorm:"column:amount;type:numeric(10,2);not null"`
	PlatformFee      decimal.Decimal   `gorm:"column:platform_fee;type:numeric(10,2);not null"`
	PaymentReference *string           `gorm:"column:payment_reference"`
	DeliveryFileURL  *string           `gorm:"column:delivery_file_url"`
	DeliveryLink     *string           `gorm:"column:delivery_link"`
	DeliveryNote     *string           `gorm:"column:delivery_note"`
	DeliveredAt      *time.Time        `gorm:"column:delivered_at"`
	CompletedAt      *time.Time        `gorm:"column:completed_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Gig *Gig `gorm:"foreignKey:GigID;references:ID"`
}
