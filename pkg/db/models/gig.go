package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gig is a service listing published by a seller.
type Gig struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID      uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	CategoryID    *uuid.UUID      `gorm:"column:category_id;type:uuid"`
	Title         string          `gorm:"column:title;not null"`
	Description   string          `gorm:"column:description;not null"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	DeliveryDays  int             `gorm:"column:delivery_days;not null;default:3"`
	Revisions     int             `gorm:"column:revisions;not null;default:1"`
	Tags          string          `gorm:"column:tags;not null;default:''"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	TotalOrders   int             `gorm:"column:total_orders;not null;default:0"`
	AverageRating decimal.Decimal `gorm:"column:average_rating;type:numeric(3,2);not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Category groups gigs for browsing.
type Category struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name string    `gorm:"column:name;not null;uniqueIndex"`
	Slug string    `gorm:"column:slug;not null;uniqueIndex"`
}
