// Package gigs is the read side of the catalog that order flows depend on.
package gigs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// Repository reads gig listings and the seller data checkout needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
	SellerUsername(ctx context.Context, sellerID uuid.UUID) (string, error)
	SellerStripeAccount(ctx context.Context, sellerID uuid.UUID) (string, error)
	CountBySeller(ctx context.Context, sellerID uuid.UUID) (int64, error)
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

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	var gig models.Gig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&gig).Error; err != nil {
		return nil, err
	}
	return &gig, nil
}

func (r *repository) SellerUsername(ctx context.Context, sellerID uuid.UUID) (string, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Select("username").Where("id = ?", sellerID).First(&user).Error; err != nil {
		return "", err
	}
	return user.Username, nil
}

// SellerStripeAccount returns the connected account id, or "" when the seller
// has no profile or never onboarded.
func (r *repository) SellerStripeAccount(ctx context.Context, sellerID uuid.UUID) (string, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Select("stripe_account_id").Where("user_id = ?", sellerID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if profile.StripeAccountID == nil {
		return "", nil
	}
	return *profile.StripeAccountID, nil
}

func (r *repository) CountBySeller(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Gig{}).Where("seller_id = ?", sellerID).Count(&count).Error
	return count, err
}
