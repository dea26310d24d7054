package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const discardReasonExpired = "session_expired"

type orderReconciler interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, reference string) (*orders.TransitionResult, error)
	DiscardPendingCheckout(ctx context.Context, orderID uuid.UUID, reason string) (bool, error)
}

type ServiceParams struct {
	Orders orderReconciler
	Logger *logger.Logger
}

// Service reconciles Checkout Session events with orders.
type Service struct {
	orders orderReconciler
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order lifecycle required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

// HandleEvent applies one verified event. Events for unknown orders and event
// types this service does not consume are acknowledged without changes.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// async methods settle later with checkout.session.async_payment_succeeded
			s.info(ctx, "stripe.checkout_awaiting_payment", session.ID)
			return nil
		}
		return s.confirm(ctx, session)
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.discard(ctx, session)
	default:
		return nil
	}
}

func (s *Service) confirm(ctx context.Context, session *stripe.CheckoutSession) error {
	orderID, ok := orderIDFromSession(session)
	if !ok {
		s.info(ctx, "stripe.checkout_without_order", session.ID)
		return nil
	}
	result, err := s.orders.ConfirmPayment(ctx, orderID, session.ID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		s.info(ctx, "stripe.checkout_unknown_order", session.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
			"session_id": session.ID,
			"changed":    result.Changed,
		})
		s.logg.Info(logCtx, "stripe.checkout_confirmed")
	}
	return nil
}

func (s *Service) discard(ctx context.Context, session *stripe.CheckoutSession) error {
	orderID, ok := orderIDFromSession(session)
	if !ok {
		return nil
	}
	_, err := s.orders.DiscardPendingCheckout(ctx, orderID, discardReasonExpired)
	return err
}

func (s *Service) info(ctx context.Context, msg, sessionID string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "session_id", sessionID), msg)
}

const checkoutSessionObject = "checkout.session"

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event data missing")
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	// a bare JSON string unmarshals as an unexpanded id with no fields
	if session.Object != checkoutSessionObject {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event object is not a checkout session").
			WithDetails(map[string]any{"object": session.Object})
	}
	return &session, nil
}

func orderIDFromSession(session *stripe.CheckoutSession) (uuid.UUID, bool) {
	raw := strings.TrimSpace(session.Metadata["order_id"])
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
