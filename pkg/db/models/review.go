package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is the buyer's rating of a completed order. Reviews are never edited.
type Review struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_reviews_order_id"`
	GigID      uuid.UUID `gorm:"column:gig_id;type:uuid;not null"`
	ReviewerID uuid.UUID `gorm:"column:reviewer_id;type:uuid;not null"`
	Rating     int       `gorm:"column:rating;type:smallint;not null"`
	Comment    string    `gorm:"column:comment;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
