package stats

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

func TestApplyOrderCompletedCreatesProfileAndAddsEarnings(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "seller")
	buyer := dbtest.CreateUser(t, conn, "buyer")
	gig := dbtest.CreateGig(t, conn, seller.ID, "150.00")
	rollup := NewRollup(nil)

	event := Event{Kind: EventOrderCompleted, GigID: gig.ID, SellerID: seller.ID, Amount: gig.Price}
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := rollup.Apply(context.Background(), tx, event)
		return err
	}))

	var storedGig models.Gig
	require.NoError(t, conn.First(&storedGig, "id = ?", gig.ID).Error)
	require.Equal(t, 1, storedGig.TotalOrders)

	var profile models.Profile
	require.NoError(t, conn.First(&profile, "user_id = ?", seller.ID).Error)
	require.Equal(t, 1, profile.TotalOrdersCompleted)
	require.True(t, profile.TotalEarnings.Equal(decimal.RequireFromString("150.00")), "earnings %s", profile.TotalEarnings)

	// a second completed order accumulates on the existing row
	other := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusCompleted)
	event.Amount = other.Amount
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := rollup.Apply(context.Background(), tx, event)
		return err
	}))
	require.NoError(t, conn.First(&profile, "user_id = ?", seller.ID).Error)
	require.Equal(t, 2, profile.TotalOrdersCompleted)
	require.True(t, profile.TotalEarnings.Equal(decimal.RequireFromString("300.00")))
}

func TestApplyReviewCreatedRoundsAverages(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "seller")
	buyer := dbtest.CreateUser(t, conn, "buyer")
	gigA := dbtest.CreateGig(t, conn, seller.ID, "20.00")
	gigB := dbtest.CreateGig(t, conn, seller.ID, "40.00")

	for _, r := range []struct {
		gig    models.Gig
		rating int
	}{
		{gigA, 5}, {gigA, 4}, {gigA, 5}, {gigB, 1},
	} {
		order := dbtest.CreateOrder(t, conn, r.gig, buyer.ID, enums.OrderStatusCompleted)
		require.NoError(t, conn.Create(&models.Review{
			ID:         uuid.New(),
			OrderID:    order.ID,
			GigID:      r.gig.ID,
			ReviewerID: buyer.ID,
			Rating:     r.rating,
		}).Error)
	}

	var res Result
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = NewRollup(nil).Apply(context.Background(), tx, Event{Kind: EventReviewCreated, GigID: gigA.ID, SellerID: seller.ID})
		return err
	}))

	// 14/3 and 15/4
	require.Equal(t, "4.67", res.GigAverageRating.StringFixed(2))
	require.Equal(t, "3.75", res.SellerAverageRating.StringFixed(2))

	var storedGig models.Gig
	require.NoError(t, conn.First(&storedGig, "id = ?", gigA.ID).Error)
	require.Equal(t, "4.67", storedGig.AverageRating.StringFixed(2))

	var profile models.Profile
	require.NoError(t, conn.First(&profile, "user_id = ?", seller.ID).Error)
	require.Equal(t, "3.75", profile.AverageRating.StringFixed(2))
	require.Equal(t, 0, profile.TotalOrdersCompleted)
}

func TestApplyReviewCreatedWithoutReviewsIsZero(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "seller")
	gig := dbtest.CreateGig(t, conn, seller.ID, "20.00")

	var res Result
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = NewRollup(nil).Apply(context.Background(), tx, Event{Kind: EventReviewCreated, GigID: gig.ID, SellerID: seller.ID})
		return err
	}))
	require.True(t, res.GigAverageRating.IsZero())
	require.True(t, res.SellerAverageRating.IsZero())
}

func TestApplyRejectsBadInput(t *testing.T) {
	conn := dbtest.Open(t)
	rollup := NewRollup(nil)
	ctx := context.Background()

	_, err := rollup.Apply(ctx, nil, Event{Kind: EventOrderCompleted, GigID: uuid.New(), SellerID: uuid.New()})
	require.Error(t, err)

	_, err = rollup.Apply(ctx, conn, Event{Kind: "nope", GigID: uuid.New(), SellerID: uuid.New()})
	require.Error(t, err)

	_, err = rollup.Apply(ctx, conn, Event{Kind: EventOrderCompleted, GigID: uuid.New(), SellerID: uuid.New(), Amount: decimal.NewFromInt(1)})
	require.ErrorContains(t, err, "not found")
}

func TestApplyReviewCreatedRoundsMeanHalfToEven(t *testing.T) {
	cases := []struct {
		name    string
		ratings []int
		want    string
	}{
		// 33/8 = 4.125 exactly
		{"exact tie", []int{5, 5, 5, 4, 4, 4, 4, 2}, "4.12"},
		// 107/40 = 2.675, below the tie in binary
		{"binary below tie", append(repeat(3, 27), repeat(2, 13)...), "2.67"},
		{"plain", []int{5, 4, 4}, "4.33"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := dbtest.Open(t)
			seller := dbtest.CreateUser(t, conn, "seller")
			buyer := dbtest.CreateUser(t, conn, "buyer")
			gig := dbtest.CreateGig(t, conn, seller.ID, "10.00")
			for _, rating := range tc.ratings {
				order := dbtest.CreateOrder(t, conn, gig, buyer.ID, enums.OrderStatusCompleted)
				require.NoError(t, conn.Create(&models.Review{
					ID:         uuid.New(),
					OrderID:    order.ID,
					GigID:      gig.ID,
					ReviewerID: buyer.ID,
					Rating:     rating,
				}).Error)
			}

			var res Result
			require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
				var err error
				res, err = NewRollup(nil).Apply(context.Background(), tx, Event{Kind: EventReviewCreated, GigID: gig.ID, SellerID: seller.ID})
				return err
			}))
			require.Equal(t, tc.want, res.GigAverageRating.StringFixed(2))
			require.Equal(t, tc.want, res.SellerAverageRating.StringFixed(2))

			var stored models.Gig
			require.NoError(t, conn.First(&stored, "id = ?", gig.ID).Error)
			require.Equal(t, tc.want, stored.AverageRating.StringFixed(2))
		})
	}
}

func TestApplyReviewCreatedUnknownGig(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "seller")

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := NewRollup(nil).Apply(context.Background(), tx, Event{Kind: EventReviewCreated, GigID: uuid.New(), SellerID: seller.ID})
		return err
	})
	require.ErrorContains(t, err, "lock gig")
}

func repeat(rating, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = rating
	}
	return out
}
