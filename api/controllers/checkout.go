package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/api/responses"
	"github.com/angelmondragon/gigmarket-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/gigmarket-backend/internal/checkout"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

type checkoutService interface {
	CreateCheckout(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.CheckoutResult, error)
	CreateDirectOrder(ctx context.Context, input checkoutsvc.CheckoutInput) (*orders.OrderDetail, error)
}

type checkoutRequest struct {
	GigID        string `json:"gig_id" validate:"required,uuid"`
	Requirements string `json:"requirements" validate:"max=5000"`
}

// Checkout creates a payment_pending order and returns the hosted payment URL.
func Checkout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := readCheckoutInput(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.CreateCheckout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// DirectOrder creates a paid order without a gateway when the feature flag allows it.
func DirectOrder(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := readCheckoutInput(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.CreateDirectOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, detail)
	}
}

func readCheckoutInput(r *http.Request, svc checkoutService) (checkoutsvc.CheckoutInput, error) {
	if svc == nil {
		return checkoutsvc.CheckoutInput{}, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable")
	}
	buyerID, _, err := middleware.Identity(r.Context())
	if err != nil {
		return checkoutsvc.CheckoutInput{}, err
	}
	var body checkoutRequest
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return checkoutsvc.CheckoutInput{}, err
	}
	return checkoutsvc.CheckoutInput{
		GigID:        uuid.MustParse(body.GigID),
		BuyerID:      buyerID,
		Requirements: body.Requirements,
		Origin:       r.Header.Get("Origin"),
	}, nil
}
