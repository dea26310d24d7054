// Package reviews stores buyer ratings of completed orders.
package reviews

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Repository has no update or delete: reviews are immutable.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, review *models.Review) error
	ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListByGig(ctx context.Context, gigID uuid.UUID, limit int, cursor *pagination.Cursor) ([]ReviewRow, *pagination.Cursor, error)
}

// ReviewRow is a review joined with the reviewer's username.
type ReviewRow struct {
	models.Review
	ReviewerUsername string `gorm:"column:reviewer_username"`
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *repository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var review models.Review
	err := r.db.WithContext(ctx).Select("id").Where("order_id = ?", orderID).First(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *repository) ListByGig(ctx context.Context, gigID uuid.UUID, limit int, cursor *pagination.Cursor) ([]ReviewRow, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(limit)
	q := r.db.WithContext(ctx).
		Table("reviews").
		Select("reviews.*, COALESCE(users.username, '') AS reviewer_username").
		Joins("LEFT JOIN users ON users.id = reviews.reviewer_id").
		Where("reviews.gig_id = ?", gigID)
	if cursor != nil {
		q = q.Where("(reviews.created_at < ?) OR (reviews.created_at = ? AND reviews.id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []ReviewRow
	if err := q.Order("reviews.created_at DESC, reviews.id DESC").Limit(pagination.LimitWithBuffer(limit)).Scan(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) > normalized {
		rows = rows[:normalized]
		last := rows[normalized-1]
		return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return rows, nil, nil
}
