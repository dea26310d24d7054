package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

// CheckoutSessionRequest describes a one-item hosted checkout for an order.
type CheckoutSessionRequest struct {
	OrderID            string
	ProductName        string
	ProductDescription string
	Amount             decimal.Decimal
	PlatformFee        decimal.Decimal
	SuccessURL         string
	CancelURL          string
	// DestinationAccount routes the payment to a connected seller account.
	// The platform fee is withheld as the application fee.
	DestinationAccount string
}

// CheckoutSession is the part of the Stripe response callers need.
type CheckoutSession struct {
	ID  string
	URL string
}

// ToCents converts a two-decimal amount to the smallest currency unit.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreateCheckoutSession opens a payment-mode Checkout Session carrying the
// order id in its metadata.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not configured")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, errors.New("order id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(c.currency),
					UnitAmount: stripe.Int64(ToCents(req.Amount)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
			},
		},
		Metadata: map[string]string{"order_id": req.OrderID},
	}
	if desc := strings.TrimSpace(req.ProductDescription); desc != "" {
		params.LineItems[0].PriceData.ProductData.Description = stripe.String(desc)
	}
	if account := strings.TrimSpace(req.DestinationAccount); account != "" {
		params.PaymentIntentData = &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(ToCents(req.PlatformFee)),
			TransferData: &stripe.CheckoutSessionCreatePaymentIntentDataTransferDataParams{
				Destination: stripe.String(account),
			},
			Metadata: map[string]string{"order_id": req.OrderID},
		}
	}

	session, err := c.api.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
