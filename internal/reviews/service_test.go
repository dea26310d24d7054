package reviews

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/stats"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

type fixture struct {
	svc    Service
	conn   *gorm.DB
	outbox *outbox.Repository
	seller models.User
	buyer  models.User
	gig    models.Gig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	outboxRepo := outbox.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Orders: orders.NewRepository(conn),
		Gigs:   gigs.NewRepository(conn),
		Tx:     client,
		Rollup: stats.NewRollup(nil),
		Outbox: outbox.NewService(outboxRepo, nil),
	})
	require.NoError(t, err)

	seller := dbtest.CreateUser(t, conn, "seller")
	return &fixture{
		svc:    svc,
		conn:   conn,
		outbox: outboxRepo,
		seller: seller,
		buyer:  dbtest.CreateUser(t, conn, "buyer"),
		gig:    dbtest.CreateGig(t, conn, seller.ID, "40.00"),
	}
}

func (f *fixture) gigRating(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var gig models.Gig
	require.NoError(t, f.conn.Where("id = ?", id).First(&gig).Error)
	return gig.AverageRating
}

func TestCreateReviewUpdatesAverages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ratings := []int{5, 4, 5}
	var last *CreateResult
	for _, rating := range ratings {
		order := dbtest.CreateOrder(t, f.conn, f.gig, f.buyer.ID, enums.OrderStatusCompleted)
		res, err := f.svc.Create(ctx, CreateInput{OrderID: order.ID, ReviewerID: f.buyer.ID, Rating: rating, Comment: "  great  "})
		require.NoError(t, err)
		require.Equal(t, "great", res.Review.Comment)
		last = res
	}

	want := decimal.RequireFromString("4.67")
	require.True(t, last.GigAverageRating.Equal(want), "got %s", last.GigAverageRating)
	require.True(t, last.SellerAverageRating.Equal(want), "got %s", last.SellerAverageRating)
	require.True(t, f.gigRating(t, f.gig.ID).Equal(want))

	events, err := f.outbox.ListByAggregate(ctx, last.Review.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventReviewCreated, events[0].EventType)
}

func TestCreateReviewRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	completed := dbtest.CreateOrder(t, f.conn, f.gig, f.buyer.ID, enums.OrderStatusCompleted)
	inProgress := dbtest.CreateOrder(t, f.conn, f.gig, f.buyer.ID, enums.OrderStatusInProgress)

	cases := []struct {
		name  string
		input CreateInput
		code  pkgerrors.Code
	}{
		{name: "unknown order", input: CreateInput{OrderID: uuid.New(), ReviewerID: f.buyer.ID, Rating: 5}, code: pkgerrors.CodeNotFound},
		{name: "not the buyer", input: CreateInput{OrderID: completed.ID, ReviewerID: f.seller.ID, Rating: 5}, code: pkgerrors.CodeValidation},
		{name: "not completed", input: CreateInput{OrderID: inProgress.ID, ReviewerID: f.buyer.ID, Rating: 5}, code: pkgerrors.CodeValidation},
		{name: "rating too low", input: CreateInput{OrderID: completed.ID, ReviewerID: f.buyer.ID, Rating: 0}, code: pkgerrors.CodeValidation},
		{name: "rating too high", input: CreateInput{OrderID: completed.ID, ReviewerID: f.buyer.ID, Rating: 6}, code: pkgerrors.CodeValidation},
		{name: "comment too long", input: CreateInput{OrderID: completed.ID, ReviewerID: f.buyer.ID, Rating: 4, Comment: strings.Repeat("x", 1001)}, code: pkgerrors.CodeValidation},
		{name: "anonymous", input: CreateInput{OrderID: completed.ID, Rating: 4}, code: pkgerrors.CodeUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.input)
			require.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.Review{}).Count(&count).Error)
	require.Zero(t, count)
	require.True(t, f.gigRating(t, f.gig.ID).IsZero())
}

func TestCreateReviewTwiceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := dbtest.CreateOrder(t, f.conn, f.gig, f.buyer.ID, enums.OrderStatusCompleted)

	_, err := f.svc.Create(ctx, CreateInput{OrderID: order.ID, ReviewerID: f.buyer.ID, Rating: 2})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateInput{OrderID: order.ID, ReviewerID: f.buyer.ID, Rating: 5})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.True(t, f.gigRating(t, f.gig.ID).Equal(decimal.NewFromInt(2)))
}

func TestRepositoryUniqueOrderReview(t *testing.T) {
	f := newFixture(t)
	order := dbtest.CreateOrder(t, f.conn, f.gig, f.buyer.ID, enums.OrderStatusCompleted)
	repo := NewRepository(f.conn)
	require.NoError(t, repo.Create(context.Background(), &models.Review{OrderID: order.ID, GigID: f.gig.ID, ReviewerID: f.buyer.ID, Rating: 3}))
	err := repo.Create(context.Background(), &models.Review{OrderID: order.ID, GigID: f.gig.ID, ReviewerID: f.buyer.ID, Rating: 4})
	require.Error(t, err)
}

func TestListByGigPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		order := dbtest.CreateOrder(t, f.conn, f.gig, f.buyer.ID, enums.OrderStatusCompleted)
		_, err := f.svc.Create(ctx, CreateInput{OrderID: order.ID, ReviewerID: f.buyer.ID, Rating: 3 + i%3})
		require.NoError(t, err)
	}

	first, err := f.svc.ListByGig(ctx, f.gig.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Reviews, 2)
	require.NotEmpty(t, first.NextCursor)
	require.Equal(t, "buyer", first.Reviews[0].ReviewerUsername)

	second, err := f.svc.ListByGig(ctx, f.gig.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Reviews, 1)
	require.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, r := range append(first.Reviews, second.Reviews...) {
		require.False(t, seen[r.ID])
		seen[r.ID] = true
	}
	require.Len(t, seen, 3)
}

func TestListByGigUnknownGig(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListByGig(context.Background(), uuid.New(), pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.ListByGig(context.Background(), f.gig.ID, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
