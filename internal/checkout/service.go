package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	pkgcheckout "github.com/angelmondragon/gigmarket-backend/pkg/checkout"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	pkgstripe "github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

const (
	defaultFrontendOrigin = "http://localhost:5173"
	directReferencePrefix = "direct_"
	discardReasonGateway  = "gateway_error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type checkoutDiscarder interface {
	DiscardPendingCheckout(ctx context.Context, orderID uuid.UUID, reason string) (bool, error)
}

// Service starts purchases of a gig.
type Service interface {
	CreateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	CreateDirectOrder(ctx context.Context, input CheckoutInput) (*orders.OrderDetail, error)
}

// CheckoutInput captures the buyer's purchase request. Origin is the caller's
// Origin header and may be empty.
type CheckoutInput struct {
	GigID        uuid.UUID
	BuyerID      uuid.UUID
	Requirements string
	Origin       string
}

// CheckoutResult is returned to the client so it can redirect to the gateway.
type CheckoutResult struct {
	CheckoutURL string    `json:"checkout_url"`
	OrderID     uuid.UUID `json:"order_id"`
}

// ServiceParams groups checkout collaborators.
type ServiceParams struct {
	Tx             txRunner
	Gigs           gigs.Repository
	Orders         orders.Repository
	Discarder      checkoutDiscarder
	Outbox         outbox.Emitter
	Gateway        Gateway
	FeePercentage  int
	FrontendOrigin string
	DirectCheckout bool
	Logger         *logger.Logger
}

type service struct {
	tx             txRunner
	gigs           gigs.Repository
	orders         orders.Repository
	discarder      checkoutDiscarder
	outbox         outbox.Emitter
	gateway        Gateway
	feePercentage  int
	frontendOrigin string
	directCheckout bool
	logg           *logger.Logger
}

// NewService builds the checkout service.
func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Gigs == nil {
		return nil, fmt.Errorf("gigs repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Discarder == nil {
		return nil, fmt.Errorf("checkout discarder required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Gateway == nil && !p.DirectCheckout {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.FeePercentage < 0 || p.FeePercentage > 100 {
		return nil, fmt.Errorf("platform fee percentage out of range: %d", p.FeePercentage)
	}
	origin := strings.TrimRight(strings.TrimSpace(p.FrontendOrigin), "/")
	if origin == "" {
		origin = defaultFrontendOrigin
	}
	return &service{
		tx:             p.Tx,
		gigs:           p.Gigs,
		orders:         p.Orders,
		discarder:      p.Discarder,
		outbox:         p.Outbox,
		gateway:        p.Gateway,
		feePercentage:  p.FeePercentage,
		frontendOrigin: origin,
		directCheckout: p.DirectCheckout,
		logg:           p.Logger,
	}, nil
}

func (s *service) CreateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment gateway not configured")
	}
	gig, err := s.loadPurchasable(ctx, input)
	if err != nil {
		return nil, err
	}
	sellerName, err := s.gigs.SellerUsername(ctx, gig.SellerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	account, err := s.gigs.SellerStripeAccount(ctx, gig.SellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller payout account")
	}

	quote := pkgcheckout.QuoteFor(gig, s.feePercentage)
	order, err := s.insertOrder(ctx, gig, input, quote, enums.OrderStatusPaymentPending, nil, payloads.ChannelStripe)
	if err != nil {
		return nil, err
	}

	origin := s.resolveOrigin(input.Origin)
	session, err := s.gateway.CreateCheckoutSession(ctx, pkgstripe.CheckoutSessionRequest{
		OrderID:            order.ID.String(),
		ProductName:        gig.Title,
		ProductDescription: fmt.Sprintf("Order from %s", sellerName),
		Amount:             quote.Amount,
		PlatformFee:        quote.PlatformFee,
		SuccessURL:         origin + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          fmt.Sprintf("%s/gigs/%s", origin, gig.ID),
		DestinationAccount: account,
	})
	if err != nil {
		s.compensate(ctx, order.ID, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "failed to create checkout session")
	}

	if err := s.orders.SetPaymentReference(ctx, order.ID, session.ID); err != nil {
		// confirmation keys on metadata.order_id, so the session stays usable
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "checkout.payment_reference_failed", err)
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"gig_id":     gig.ID.String(),
			"session_id": session.ID,
		})
		s.logg.Info(logCtx, "checkout.session_created")
	}
	return &CheckoutResult{CheckoutURL: session.URL, OrderID: order.ID}, nil
}

func (s *service) CreateDirectOrder(ctx context.Context, input CheckoutInput) (*orders.OrderDetail, error) {
	if !s.directCheckout {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "direct checkout is disabled")
	}
	gig, err := s.loadPurchasable(ctx, input)
	if err != nil {
		return nil, err
	}
	quote := pkgcheckout.QuoteFor(gig, s.feePercentage)
	reference := directReferencePrefix + uuid.NewString()
	order, err := s.insertOrder(ctx, gig, input, quote, enums.OrderStatusPending, &reference, payloads.ChannelDirect)
	if err != nil {
		return nil, err
	}
	order.Gig = gig
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "checkout.direct_order_created")
	}
	detail := orders.DetailFromModel(order)
	return &detail, nil
}

func (s *service) loadPurchasable(ctx context.Context, input CheckoutInput) (*models.Gig, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.GigID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gig_id is required")
	}
	gig, err := s.gigs.FindByID(ctx, input.GigID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gig")
	}
	if err := pkgcheckout.ValidatePurchase(gig, input.BuyerID); err != nil {
		return nil, err
	}
	return gig, nil
}

func (s *service) insertOrder(
	ctx context.Context,
	gig *models.Gig,
	input CheckoutInput,
	quote pkgcheckout.Quote,
	status enums.OrderStatus,
	reference *string,
	channel string,
) (*models.Order, error) {
	order := &models.Order{
		ID:               uuid.New(),
		GigID:            gig.ID,
		BuyerID:          input.BuyerID,
		Status:           status,
		Requirements:     strings.TrimSpace(input.Requirements),
		Amount:           quote.Amount,
		PlatformFee:      quote.PlatformFee,
		PaymentReference: reference,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: string(enums.ActorBuyer)},
			OccurredAt:    time.Now().UTC(),
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				GigID:       gig.ID,
				BuyerID:     input.BuyerID,
				SellerID:    gig.SellerID,
				Status:      status,
				Amount:      quote.Amount,
				PlatformFee: quote.PlatformFee,
				Channel:     channel,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) compensate(ctx context.Context, orderID uuid.UUID, cause error) {
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Error(logCtx, "checkout.gateway_failed", cause)
	}
	if _, err := s.discarder.DiscardPendingCheckout(ctx, orderID, discardReasonGateway); err != nil && s.logg != nil {
		s.logg.Error(logCtx, "checkout.compensating_delete_failed", err)
	}
}

func (s *service) resolveOrigin(header string) string {
	origin := strings.TrimRight(strings.TrimSpace(header), "/")
	if origin == "" || origin == "null" {
		return s.frontendOrigin
	}
	return origin
}
