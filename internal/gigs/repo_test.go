package gigs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

func TestRepositoryFindByID(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "sam")
	gig := dbtest.CreateGig(t, conn, seller.ID, "75.50")
	repo := NewRepository(conn)

	got, err := repo.FindByID(context.Background(), gig.ID)
	require.NoError(t, err)
	require.Equal(t, seller.ID, got.SellerID)
	require.Equal(t, "75.50", got.Price.StringFixed(2))
	require.True(t, got.IsActive)

	_, err = repo.FindByID(context.Background(), uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestRepositorySellerLookups(t *testing.T) {
	conn := dbtest.Open(t)
	seller := dbtest.CreateUser(t, conn, "sam")
	dbtest.CreateGig(t, conn, seller.ID, "10.00")
	dbtest.CreateGig(t, conn, seller.ID, "20.00")
	repo := NewRepository(conn)
	ctx := context.Background()

	name, err := repo.SellerUsername(ctx, seller.ID)
	require.NoError(t, err)
	require.Equal(t, "sam", name)

	count, err := repo.CountBySeller(ctx, seller.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	account, err := repo.SellerStripeAccount(ctx, seller.ID)
	require.NoError(t, err)
	require.Empty(t, account)

	acct := "acct_123"
	require.NoError(t, conn.Create(&models.Profile{UserID: seller.ID, StripeAccountID: &acct}).Error)
	account, err = repo.SellerStripeAccount(ctx, seller.ID)
	require.NoError(t, err)
	require.Equal(t, "acct_123", account)
}
