package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

func TestCompareAndSwapStatus(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "seller")
	buyer := dbtest.CreateUser(t, conn, "buyer")
	gig := dbtest.CreateGig(t, conn, seller.ID, "40.00")
	order := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusPending)
	repo := NewRepository(conn)
	ctx := context.Background()

	ok, err := repo.CompareAndSwapStatus(ctx, order.ID, enums.OrderStatusPending, map[string]any{"status": enums.OrderStatusInProgress})
	require.NoError(t, err)
	require.True(t, ok)

	// stale expectation loses
	ok, err = repo.CompareAndSwapStatus(ctx, order.ID, enums.OrderStatusPending, map[string]any{"status": enums.OrderStatusCancelled})
	require.NoError(t, err)
	require.False(t, ok)

	for _, col := range []string{"amount", "platform_fee", "gig_id", "buyer_id"} {
		_, err = repo.CompareAndSwapStatus(ctx, order.ID, enums.OrderStatusInProgress, map[string]any{"status": enums.OrderStatusDelivered, col: decimal.NewFromInt(1)})
		require.Error(t, err, col)
	}

	found, err := repo.FindForUpdate(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusInProgress, found.Status)
	require.NotNil(t, found.Gig)
	require.Equal(t, seller.ID, found.Gig.SellerID)
	require.True(t, found.Amount.Equal(decimal.RequireFromString("40.00")))
}

func TestDeletePaymentPendingOnlyDeletesUnpaid(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "seller")
	buyer := dbtest.CreateUser(t, conn, "buyer")
	gig := dbtest.CreateGig(t, conn, seller.ID, "40.00")
	unpaid := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusPaymentPending)
	paid := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusPending)
	repo := NewRepository(conn)
	ctx := context.Background()

	deleted, err := repo.DeletePaymentPending(ctx, paid.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = repo.DeletePaymentPending(ctx, unpaid.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	var count int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestFindStalePaymentPending(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "seller")
	buyer := dbtest.CreateUser(t, conn, "buyer")
	gig := dbtest.CreateGig(t, conn, seller.ID, "40.00")
	old := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusPaymentPending)
	fresh := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusPaymentPending)
	oldPaid := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusPending)

	past := time.Now().UTC().Add(-48 * time.Hour)
	for _, id := range []uuid.UUID{old.ID, oldPaid.ID} {
		require.NoError(t, conn.Model(&models.Order{}).Where("id = ?", id).UpdateColumn("created_at", past).Error)
	}

	ids, err := NewRepository(conn).FindStalePaymentPending(context.Background(), time.Now().UTC().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{old.ID}, ids)
	require.NotContains(t, ids, fresh.ID)
}
