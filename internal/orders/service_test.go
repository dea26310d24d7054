package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/stats"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

type fixture struct {
	svc    Service
	conn   *gorm.DB
	reg    *prometheus.Registry
	seller models.User
	buyer  models.User
	gig    models.Gig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Tx:      client,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Rollup:  stats.NewRollup(nil),
		Metrics: metrics.NewOrderMetrics(reg),
	})
	require.NoError(t, err)

	seller := dbtest.CreateUser(t, conn, "seller")
	buyer := dbtest.CreateUser(t, conn, "buyer")
	return &fixture{
		svc:    svc,
		conn:   conn,
		reg:    reg,
		seller: seller,
		buyer:  buyer,
		gig:    dbtest.CreateGig(t, conn, seller.ID, "150.00"),
	}
}

func (f *fixture) order(t *testing.T, status enums.OrderStatus) models.Order {
	t.Helper()
	return dbtest.CreateOrder(t, f.conn, f.gig, f.buyer.ID, status)
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", id).Error)
	return order
}

func (f *fixture) transition(actor uuid.UUID, order models.Order, target enums.OrderStatus) (*TransitionResult, error) {
	return f.svc.Transition(context.Background(), TransitionInput{OrderID: order.ID, ActorID: actor, Target: target})
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestFullLifecycleAddsEarningsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusPaymentPending)
	require.Equal(t, "15.00", order.PlatformFee.StringFixed(2))

	res, err := f.svc.ConfirmPayment(ctx, order.ID, "cs_test_1")
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, enums.OrderStatusPending, res.NewStatus)

	_, err = f.transition(f.seller.ID, order, enums.OrderStatusInProgress)
	require.NoError(t, err)
	_, err = f.transition(f.seller.ID, order, enums.OrderStatusDelivered)
	require.NoError(t, err)
	res, err = f.transition(f.buyer.ID, order, enums.OrderStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, res.OldStatus)
	require.Equal(t, enums.OrderStatusCompleted, res.NewStatus)

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusCompleted, stored.Status)
	require.NotNil(t, stored.DeliveredAt)
	require.NotNil(t, stored.CompletedAt)
	require.Equal(t, "cs_test_1", *stored.PaymentReference)
	require.True(t, stored.Amount.Equal(decimal.RequireFromString("150.00")))
	require.True(t, stored.PlatformFee.Equal(decimal.RequireFromString("15.00")))

	var profile models.Profile
	require.NoError(t, f.conn.First(&profile, "user_id = ?", f.seller.ID).Error)
	require.Equal(t, 1, profile.TotalOrdersCompleted)
	require.True(t, profile.TotalEarnings.Equal(decimal.RequireFromString("150.00")))

	var gig models.Gig
	require.NoError(t, f.conn.First(&gig, "id = ?", f.gig.ID).Error)
	require.Equal(t, 1, gig.TotalOrders)

	// completing again through the regular path is an illegal transition
	_, err = f.transition(f.buyer.ID, order, enums.OrderStatusCompleted)
	requireCode(t, err, pkgerrors.CodeValidation)

	// admin re-setting completed is a no-op
	res, err = f.svc.AdminSetStatus(ctx, AdminStatusInput{OrderID: order.ID, ActorID: uuid.New(), Target: enums.OrderStatusCompleted})
	require.NoError(t, err)
	require.False(t, res.Changed)

	require.NoError(t, f.conn.First(&profile, "user_id = ?", f.seller.ID).Error)
	require.Equal(t, 1, profile.TotalOrdersCompleted)
	require.True(t, profile.TotalEarnings.Equal(decimal.RequireFromString("150.00")))

	require.Equal(t, float64(1), transitionCount(t, f.reg, "delivered", "completed", "buyer"))
	require.Equal(t, float64(1), transitionCount(t, f.reg, "payment_pending", "pending", "gateway"))
}

func TestAdminOverrideCompletionRollsUpOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusInProgress)
	admin := uuid.New()

	_, err := f.svc.AdminSetStatus(ctx, AdminStatusInput{OrderID: order.ID, ActorID: admin, Target: enums.OrderStatusCompleted})
	require.NoError(t, err)
	_, err = f.svc.AdminSetStatus(ctx, AdminStatusInput{OrderID: order.ID, ActorID: admin, Target: enums.OrderStatusDelivered})
	require.NoError(t, err)
	_, err = f.svc.AdminSetStatus(ctx, AdminStatusInput{OrderID: order.ID, ActorID: admin, Target: enums.OrderStatusCompleted})
	require.NoError(t, err)

	var profile models.Profile
	require.NoError(t, f.conn.First(&profile, "user_id = ?", f.seller.ID).Error)
	require.Equal(t, 1, profile.TotalOrdersCompleted)
	require.True(t, profile.TotalEarnings.Equal(decimal.RequireFromString("150.00")))
}

func TestAdminSetStatusRejectsPaymentPending(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusPending)
	_, err := f.svc.AdminSetStatus(context.Background(), AdminStatusInput{OrderID: order.ID, ActorID: uuid.New(), Target: enums.OrderStatusPaymentPending})
	requireCode(t, err, pkgerrors.CodeValidation)
	require.Equal(t, enums.OrderStatusPending, f.reload(t, order.ID).Status)
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	stranger := dbtest.CreateUser(t, f.conn, "stranger")

	pending := f.order(t, enums.OrderStatusPending)

	_, err := f.svc.Transition(context.Background(), TransitionInput{OrderID: uuid.New(), ActorID: f.buyer.ID, Target: enums.OrderStatusCancelled})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.transition(stranger.ID, pending, enums.OrderStatusCancelled)
	requireCode(t, err, pkgerrors.CodeForbidden)

	for _, actor := range []uuid.UUID{f.buyer.ID, f.seller.ID} {
		_, err = f.transition(actor, pending, enums.OrderStatusCompleted)
		requireCode(t, err, pkgerrors.CodeValidation)
		require.Contains(t, err.Error(), "invalid status transition from pending to completed")
	}

	// the buyer cannot start work and the seller cannot cancel
	_, err = f.transition(f.buyer.ID, pending, enums.OrderStatusInProgress)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = f.transition(f.seller.ID, pending, enums.OrderStatusCancelled)
	requireCode(t, err, pkgerrors.CodeValidation)

	// an admin who is not a party has no regular transitions
	_, err = f.svc.Transition(context.Background(), TransitionInput{OrderID: pending.ID, ActorID: stranger.ID, IsAdmin: true, Target: enums.OrderStatusCancelled})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.transition(f.buyer.ID, pending, "shipped")
	requireCode(t, err, pkgerrors.CodeValidation)

	require.Equal(t, enums.OrderStatusPending, f.reload(t, pending.ID).Status)

	// the buyer may cancel while pending
	res, err := f.transition(f.buyer.ID, pending, enums.OrderStatusCancelled)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, res.NewStatus)
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusPaymentPending)

	_, err := f.svc.ConfirmPayment(ctx, order.ID, "cs_1")
	require.NoError(t, err)
	res, err := f.svc.ConfirmPayment(ctx, order.ID, "cs_1")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, enums.OrderStatusPending, f.reload(t, order.ID).Status)

	// a replay after the seller started work leaves the order alone
	_, err = f.transition(f.seller.ID, order, enums.OrderStatusInProgress)
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, order.ID, "cs_1")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusInProgress, f.reload(t, order.ID).Status)

	_, err = f.svc.ConfirmPayment(ctx, uuid.New(), "cs_2")
	require.True(t, errors.Is(err, ErrOrderNotFound))

	events, err := outbox.NewRepository(f.conn).ListByAggregate(ctx, order.ID)
	require.NoError(t, err)
	confirmed := 0
	for _, e := range events {
		if e.EventType == enums.EventOrderPaymentConfirmed {
			confirmed++
		}
	}
	require.Equal(t, 1, confirmed)
}

func TestSubmitDeliveryPartialUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusPending)
	file := "https://storage.example.com/deliveries/a.pdf"
	note := "first cut"

	delivered, err := f.svc.SubmitDelivery(ctx, DeliveryUpdate{OrderID: order.ID, SellerID: f.seller.ID, FileURL: &file, Note: &note})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	stored := f.reload(t, order.ID)
	require.Equal(t, file, *stored.DeliveryFileURL)
	require.Nil(t, stored.DeliveryLink)
	require.Equal(t, note, *stored.DeliveryNote)
	require.NotNil(t, stored.DeliveredAt)

	// delivered is not a delivery source state
	link := "https://example.com/work"
	_, err = f.svc.SubmitDelivery(ctx, DeliveryUpdate{OrderID: order.ID, SellerID: f.seller.ID, Link: &link})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestSubmitDeliveryKeepsOmittedFieldsAndDeliveredAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusInProgress)
	earlier := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	oldFile := "https://storage.example.com/old.pdf"
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"delivered_at":      earlier,
		"delivery_file_url": oldFile,
	}).Error)

	link := "https://example.com/final"
	_, err := f.svc.SubmitDelivery(ctx, DeliveryUpdate{OrderID: order.ID, SellerID: f.seller.ID, Link: &link})
	require.NoError(t, err)

	stored := f.reload(t, order.ID)
	require.Equal(t, oldFile, *stored.DeliveryFileURL)
	require.Equal(t, link, *stored.DeliveryLink)
	require.True(t, stored.DeliveredAt.Equal(earlier), "delivered_at overwritten: %v", stored.DeliveredAt)
}

func TestSubmitDeliveryValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusInProgress)
	link := "https://example.com/x"

	_, err := f.svc.SubmitDelivery(ctx, DeliveryUpdate{OrderID: order.ID, SellerID: f.seller.ID})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.SubmitDelivery(ctx, DeliveryUpdate{OrderID: order.ID, SellerID: f.buyer.ID, Link: &link})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.SubmitDelivery(ctx, DeliveryUpdate{OrderID: uuid.New(), SellerID: f.seller.ID, Link: &link})
	requireCode(t, err, pkgerrors.CodeNotFound)

	require.NoError(t, f.svc.CheckDeliverable(ctx, order.ID, f.seller.ID))
	requireCode(t, f.svc.CheckDeliverable(ctx, order.ID, f.buyer.ID), pkgerrors.CodeForbidden)

	require.Equal(t, enums.OrderStatusInProgress, f.reload(t, order.ID).Status)
}

func TestDiscardPendingCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unpaid := f.order(t, enums.OrderStatusPaymentPending)
	paid := f.order(t, enums.OrderStatusPending)

	ok, err := f.svc.DiscardPendingCheckout(ctx, unpaid.ID, "gateway_error")
	require.NoError(t, err)
	require.True(t, ok)
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", unpaid.ID).Count(&count).Error)
	require.Zero(t, count)

	ok, err = f.svc.DiscardPendingCheckout(ctx, paid.ID, "gateway_error")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, enums.OrderStatusPending, f.reload(t, paid.ID).Status)

	ok, err = f.svc.DiscardPendingCheckout(ctx, uuid.New(), "stale")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := dbtest.CreateUser(t, f.conn, "stranger")
	first := f.order(t, enums.OrderStatusPending)
	f.order(t, enums.OrderStatusCompleted)
	f.order(t, enums.OrderStatusPending)

	detail, err := f.svc.Get(ctx, first.ID, Viewer{UserID: f.seller.ID})
	require.NoError(t, err)
	require.Equal(t, first.ID, detail.ID)
	require.NotNil(t, detail.Gig)
	require.Equal(t, f.gig.Title, detail.Gig.Title)

	_, err = f.svc.Get(ctx, first.ID, Viewer{UserID: stranger.ID})
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = f.svc.Get(ctx, first.ID, Viewer{UserID: stranger.ID, IsAdmin: true})
	require.NoError(t, err)

	pending := enums.OrderStatusPending
	list, err := f.svc.List(ctx, ListInput{UserID: f.seller.ID, Role: enums.OrderListSeller, Status: &pending})
	require.NoError(t, err)
	require.Len(t, list.Orders, 2)

	list, err = f.svc.List(ctx, ListInput{UserID: f.seller.ID, Role: enums.OrderListBuyer})
	require.NoError(t, err)
	require.Empty(t, list.Orders)

	seen := map[uuid.UUID]bool{}
	cursor := ""
	for page := 0; page < 5; page++ {
		list, err = f.svc.List(ctx, ListInput{UserID: f.buyer.ID, Role: enums.OrderListBuyer, Params: pagination.Params{Limit: 2, Cursor: cursor}})
		require.NoError(t, err)
		for _, o := range list.Orders {
			require.False(t, seen[o.ID], "order %s returned twice", o.ID)
			seen[o.ID] = true
		}
		if list.NextCursor == "" {
			break
		}
		cursor = list.NextCursor
	}
	require.Len(t, seen, 3)

	_, err = f.svc.List(ctx, ListInput{UserID: f.buyer.ID, Params: pagination.Params{Cursor: "%%%"}})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestConcurrentCompletionAppliesOnce(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusDelivered)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.transition(f.buyer.ID, order, enums.OrderStatusCompleted)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)

	var profile models.Profile
	require.NoError(t, f.conn.First(&profile, "user_id = ?", f.seller.ID).Error)
	require.Equal(t, 1, profile.TotalOrdersCompleted)
}

func transitionCount(t *testing.T, reg *prometheus.Registry, from, to, actor string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	want := map[string]string{"from": from, "to": to, "actor": actor}
	for _, mf := range mfs {
		if mf.GetName() != "gigmarket_order_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, l := range m.GetLabel() {
				if want[l.GetName()] == l.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
