package checkout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Quote is the money snapshot written onto a new order.
type Quote struct {
	Amount      decimal.Decimal
	PlatformFee decimal.Decimal
}

// PlatformFee returns round(amount * percentage / 100, 2).
func PlatformFee(amount decimal.Decimal, percentage int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percentage))).Div(hundred).Round(2)
}

// QuoteFor snapshots the gig price and derives the platform fee.
func QuoteFor(gig *models.Gig, feePercentage int) Quote {
	amount := gig.Price.Round(2)
	return Quote{
		Amount:      amount,
		PlatformFee: PlatformFee(amount, feePercentage),
	}
}

// ValidatePurchase ensures the buyer may order the gig.
func ValidatePurchase(gig *models.Gig, buyerID uuid.UUID) error {
	if gig == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
	}
	if !gig.IsActive {
		return pkgerrors.New(pkgerrors.CodeValidation, "gig is not active")
	}
	if gig.SellerID == buyerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot order your own gig")
	}
	if !gig.Price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("gig price %s is not purchasable", gig.Price.StringFixed(2)))
	}
	return nil
}
