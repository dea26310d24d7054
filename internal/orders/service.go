package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/stats"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// ErrOrderNotFound is returned by ConfirmPayment so the webhook can acknowledge
// events for orders it does not know.
var ErrOrderNotFound = errors.New("order not found")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order lifecycle engine. Every status write goes through it.
type Service interface {
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	AdminSetStatus(ctx context.Context, input AdminStatusInput) (*TransitionResult, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, reference string) (*TransitionResult, error)
	CheckDeliverable(ctx context.Context, orderID, sellerID uuid.UUID) error
	SubmitDelivery(ctx context.Context, update DeliveryUpdate) (*models.Order, error)
	DiscardPendingCheckout(ctx context.Context, orderID uuid.UUID, reason string) (bool, error)
	Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDetail, error)
	List(ctx context.Context, input ListInput) (*OrderList, error)
}

// ServiceParams groups the collaborators of the lifecycle engine.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outbox.Emitter
	Rollup  stats.Applier
	Metrics *metrics.OrderMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	rollup  stats.Applier
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the lifecycle engine with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Rollup == nil {
		return nil, fmt.Errorf("stats rollup required")
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    p.Repo,
		tx:      p.Tx,
		outbox:  p.Outbox,
		rollup:  p.Rollup,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     now,
	}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").WithDetails(map[string]any{"status": string(input.Target)})
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadForUpdate(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		role, err := resolveRole(order, input.ActorID, input.IsAdmin)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, role, input.Target) {
			return invalidTransition(order.Status, input.Target)
		}
		result, err = s.apply(ctx, tx, order, input.Target, role, input.ActorID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) AdminSetStatus(ctx context.Context, input AdminStatusInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !IsAdminTarget(input.Target) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").WithDetails(map[string]any{"status": string(input.Target)})
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadForUpdate(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status == input.Target {
			result = &TransitionResult{OrderID: order.ID, OldStatus: order.Status, NewStatus: order.Status}
			return nil
		}
		result, err = s.apply(ctx, tx, order, input.Target, enums.ActorAdmin, input.ActorID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, reference string) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusPaymentPending {
			// replays and late deliveries of the same event land here
			result = &TransitionResult{OrderID: order.ID, OldStatus: order.Status, NewStatus: order.Status}
			return nil
		}

		extra := map[string]any{}
		if reference != "" {
			extra["payment_reference"] = reference
		}
		result, err = s.apply(ctx, tx, order, enums.OrderStatusPending, enums.ActorGateway, uuid.Nil, extra)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.ActorGateway)},
			Data: payloads.OrderPaymentConfirmedEvent{
				OrderID:          order.ID,
				PaymentReference: reference,
				ConfirmedAt:      s.now(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckDeliverable runs the authorization and state checks of SubmitDelivery
// without writing, so uploads are skipped for requests that would fail.
func (s *service) CheckDeliverable(ctx context.Context, orderID, sellerID uuid.UUID) error {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return mapLoadError(err)
	}
	return checkDelivery(order, sellerID)
}

func (s *service) SubmitDelivery(ctx context.Context, update DeliveryUpdate) (*models.Order, error) {
	if update.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if update.FileURL == nil && update.Link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery requires a file or a link")
	}

	var delivered *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadForUpdate(ctx, tx, update.OrderID)
		if err != nil {
			return err
		}
		if err := checkDelivery(order, update.SellerID); err != nil {
			return err
		}

		extra := map[string]any{}
		if update.FileURL != nil {
			extra["delivery_file_url"] = *update.FileURL
			order.DeliveryFileURL = update.FileURL
		}
		if update.Link != nil {
			extra["delivery_link"] = *update.Link
			order.DeliveryLink = update.Link
		}
		if update.Note != nil {
			extra["delivery_note"] = *update.Note
			order.DeliveryNote = update.Note
		}
		if _, err := s.apply(ctx, tx, order, enums.OrderStatusDelivered, enums.ActorSeller, update.SellerID, extra); err != nil {
			return err
		}
		delivered = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivered, nil
}

func (s *service) DiscardPendingCheckout(ctx context.Context, orderID uuid.UUID, reason string) (bool, error) {
	var discarded bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusPaymentPending {
			return nil
		}
		deleted, err := repo.DeletePaymentPending(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete unpaid order")
		}
		if !deleted {
			return nil
		}
		discarded = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCheckoutDiscarded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.ActorSystem)},
			Data: payloads.OrderCheckoutDiscardedEvent{
				OrderID: order.ID,
				GigID:   order.GigID,
				BuyerID: order.BuyerID,
				Reason:  reason,
			},
		})
	})
	if err != nil {
		return false, err
	}
	if discarded && s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{"reason": reason})
		s.logg.Info(logCtx, "order.checkout_discarded")
	}
	return discarded, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if _, err := resolveRole(order, viewer.UserID, viewer.IsAdmin); err != nil {
		return nil, err
	}
	detail := DetailFromModel(order)
	return &detail, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*OrderList, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	query := listQuery{
		UserID: input.UserID,
		Role:   input.Role,
		Status: input.Status,
		Limit:  input.Params.Limit,
	}
	if input.Params.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderDetail, 0, len(rows))}
	for i := range rows {
		out.Orders = append(out.Orders, DetailFromModel(&rows[i]))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

// apply writes one status change with its side effects. Callers have already
// validated the move and hold the row lock.
func (s *service) apply(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor enums.ActorRole, actorID uuid.UUID, extra map[string]any) (*TransitionResult, error) {
	from := order.Status
	now := s.now()

	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	if to == enums.OrderStatusDelivered && order.DeliveredAt == nil {
		updates["delivered_at"] = now
		order.DeliveredAt = &now
	}
	completing := to == enums.OrderStatusCompleted && order.CompletedAt == nil
	if completing {
		updates["completed_at"] = now
		order.CompletedAt = &now
	}

	swapped, err := s.repo.WithTx(tx).CompareAndSwapStatus(ctx, order.ID, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !swapped {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
	}
	order.Status = to

	sellerID := uuid.Nil
	if order.Gig != nil {
		sellerID = order.Gig.SellerID
	}
	if completing {
		if _, err := s.rollup.Apply(ctx, tx, stats.Event{
			Kind:     stats.EventOrderCompleted,
			GigID:    order.GigID,
			SellerID: sellerID,
			Amount:   order.Amount,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply completion rollup")
		}
	}

	actorRef := &outbox.ActorRef{Role: string(actor)}
	if actorID != uuid.Nil {
		actorRef.UserID = actorID
	}
	events := []outbox.DomainEvent{{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   order.ID,
			GigID:     order.GigID,
			BuyerID:   order.BuyerID,
			SellerID:  sellerID,
			From:      from,
			To:        to,
			Actor:     actor,
			ChangedAt: now,
		},
	}}
	if to == enums.OrderStatusDelivered {
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef,
			Data: payloads.OrderDeliveredEvent{
				OrderID:         order.ID,
				BuyerID:         order.BuyerID,
				SellerID:        sellerID,
				DeliveryFileURL: order.DeliveryFileURL,
				DeliveryLink:    order.DeliveryLink,
				DeliveredAt:     *order.DeliveredAt,
			},
		})
	}
	if completing {
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef,
			Data: payloads.OrderCompletedEvent{
				OrderID:     order.ID,
				GigID:       order.GigID,
				SellerID:    sellerID,
				Amount:      order.Amount,
				CompletedAt: now,
			},
		})
	}
	for _, event := range events {
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
		}
	}

	s.metrics.IncTransition(string(from), string(to), string(actor))
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"from":  string(from),
			"to":    string(to),
			"actor": string(actor),
		})
		s.logg.Info(logCtx, "order.transition")
	}

	return &TransitionResult{OrderID: order.ID, OldStatus: from, NewStatus: to, Changed: true}, nil
}

func (s *service) loadForUpdate(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindForUpdate(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return order, nil
}

// resolveRole derives the caller's relationship to the order. Parties win over
// the admin flag so an admin buying a gig is treated as the buyer.
func resolveRole(order *models.Order, actorID uuid.UUID, isAdmin bool) (enums.ActorRole, error) {
	switch {
	case actorID != uuid.Nil && actorID == order.BuyerID:
		return enums.ActorBuyer, nil
	case actorID != uuid.Nil && order.Gig != nil && actorID == order.Gig.SellerID:
		return enums.ActorSeller, nil
	case isAdmin:
		return enums.ActorAdmin, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
}

func checkDelivery(order *models.Order, sellerID uuid.UUID) error {
	if order.Gig == nil || sellerID == uuid.Nil || order.Gig.SellerID != sellerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can deliver this order")
	}
	if !CanDeliver(order.Status, enums.ActorSeller) {
		return invalidTransition(order.Status, enums.OrderStatusDelivered)
	}
	return nil
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status transition from %s to %s", from, to))
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
