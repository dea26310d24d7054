// Package stats owns the denormalized marketplace counters on gigs and profiles.
// Apply is the only writer of those columns.
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// EventKind selects which counters an Apply call refreshes.
type EventKind string

const (
	EventOrderCompleted EventKind = "order_completed"
	EventReviewCreated  EventKind = "review_created"
)

// Event describes the change that triggered a rollup. Amount is only read for
// EventOrderCompleted.
type Event struct {
	Kind     EventKind
	GigID    uuid.UUID
	SellerID uuid.UUID
	Amount   decimal.Decimal
}

// Result carries the averages after an EventReviewCreated rollup.
type Result struct {
	GigAverageRating    decimal.Decimal
	SellerAverageRating decimal.Decimal
}

// Applier is implemented by Rollup; services depend on it for testing.
type Applier interface {
	Apply(ctx context.Context, tx *gorm.DB, event Event) (Result, error)
}

type Rollup struct {
	logg *logger.Logger
}

func NewRollup(logg *logger.Logger) *Rollup {
	return &Rollup{logg: logg}
}

// Apply must run inside the caller's transaction so the counters commit with
// the change that caused them.
func (r *Rollup) Apply(ctx context.Context, tx *gorm.DB, event Event) (Result, error) {
	if tx == nil {
		return Result{}, errors.New("transaction required")
	}
	if event.GigID == uuid.Nil || event.SellerID == uuid.Nil {
		return Result{}, errors.New("gig and seller ids required")
	}

	var (
		res Result
		err error
	)
	switch event.Kind {
	case EventOrderCompleted:
		err = r.orderCompleted(ctx, tx, event)
	case EventReviewCreated:
		res, err = r.reviewCreated(ctx, tx, event)
	default:
		return Result{}, fmt.Errorf("unknown rollup event %q", event.Kind)
	}
	if err != nil {
		return Result{}, err
	}

	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"rollup":    string(event.Kind),
			"gig_id":    event.GigID.String(),
			"seller_id": event.SellerID.String(),
		})
		r.logg.Debug(logCtx, "stats.rollup.applied")
	}
	return res, nil
}

func (r *Rollup) orderCompleted(ctx context.Context, tx *gorm.DB, event Event) error {
	if event.Amount.IsNegative() {
		return errors.New("completed amount must not be negative")
	}

	res := tx.WithContext(ctx).Model(&models.Gig{}).
		Where("id = ?", event.GigID).
		Update("total_orders", gorm.Expr("total_orders + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment gig orders: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("gig %s not found", event.GigID)
	}

	profile, err := lockProfile(ctx, tx, event.SellerID)
	if err != nil {
		return err
	}
	// earnings are summed in Go so numeric precision matches on every driver
	earnings := profile.TotalEarnings.Add(event.Amount).Round(2)
	return tx.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", event.SellerID).
		Updates(map[string]any{
			"total_earnings":         earnings,
			"total_orders_completed": gorm.Expr("total_orders_completed + 1"),
		}).Error
}

func (r *Rollup) reviewCreated(ctx context.Context, tx *gorm.DB, event Event) (Result, error) {
	// Both rows are locked before aggregating so concurrent reviews serialize
	// and each average sees every committed review.
	var gig models.Gig
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", event.GigID).
		First(&gig).Error; err != nil {
		return Result{}, fmt.Errorf("lock gig: %w", err)
	}
	if _, err := lockProfile(ctx, tx, event.SellerID); err != nil {
		return Result{}, err
	}

	gigAvg, err := averageRating(tx.WithContext(ctx).
		Table("reviews").
		Where("gig_id = ?", event.GigID))
	if err != nil {
		return Result{}, fmt.Errorf("gig rating: %w", err)
	}
	sellerAvg, err := averageRating(tx.WithContext(ctx).
		Table("reviews").
		Joins("JOIN gigs ON gigs.id = reviews.gig_id").
		Where("gigs.seller_id = ?", event.SellerID))
	if err != nil {
		return Result{}, fmt.Errorf("seller rating: %w", err)
	}

	if err := tx.WithContext(ctx).Model(&models.Gig{}).
		Where("id = ?", event.GigID).
		Update("average_rating", gigAvg).Error; err != nil {
		return Result{}, fmt.Errorf("update gig rating: %w", err)
	}
	if err := tx.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", event.SellerID).
		Update("average_rating", sellerAvg).Error; err != nil {
		return Result{}, fmt.Errorf("update seller rating: %w", err)
	}
	return Result{GigAverageRating: gigAvg, SellerAverageRating: sellerAvg}, nil
}

// lockProfile creates the seller's profile row on first touch and returns it
// locked for update.
func lockProfile(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Profile, error) {
	row := models.Profile{
		UserID:        userID,
		TotalEarnings: decimal.Zero,
		AverageRating: decimal.Zero,
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error; err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	var profile models.Profile
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&profile).Error; err != nil {
		return nil, fmt.Errorf("lock profile: %w", err)
	}
	return &profile, nil
}

type ratingAggregate struct {
	ReviewCount int64
	Total       int64
}

// averageRating rounds the float64 mean of SUM/COUNT to two places, or zero
// with no reviews. FormatFloat rounds the binary value half-to-even, so 4.125
// becomes 4.12 and 2.675 (stored as 2.67499...) becomes 2.67.
func averageRating(query *gorm.DB) (decimal.Decimal, error) {
	var agg ratingAggregate
	if err := query.
		Select("COUNT(*) AS review_count, COALESCE(SUM(reviews.rating), 0) AS total").
		Scan(&agg).Error; err != nil {
		return decimal.Zero, err
	}
	if agg.ReviewCount == 0 {
		return decimal.Zero, nil
	}
	mean := float64(agg.Total) / float64(agg.ReviewCount)
	return decimal.RequireFromString(strconv.FormatFloat(mean, 'f', 2, 64)), nil
}
