// Package dbtest opens throwaway sqlite databases carrying the gigmarket schema.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
)

var seq atomic.Int64

// Open returns an isolated in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.ApplySQLiteSchema(context.Background(), conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// Client wraps Open in a db.Client for code that needs a transaction runner.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.Wrap(conn), conn
}

// CreateUser inserts a user with a unique username.
func CreateUser(t testing.TB, conn *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{
		ID:       uuid.New(),
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateGig inserts an active gig for seller at the given price.
func CreateGig(t testing.TB, conn *gorm.DB, sellerID uuid.UUID, price string) models.Gig {
	t.Helper()
	gig := models.Gig{
		ID:            uuid.New(),
		SellerID:      sellerID,
		Title:         "Logo design",
		Description:   "A clean vector logo",
		Price:         decimal.RequireFromString(price),
		DeliveryDays:  3,
		Revisions:     1,
		IsActive:      true,
		AverageRating: decimal.Zero,
	}
	if err := conn.Create(&gig).Error; err != nil {
		t.Fatalf("create gig: %v", err)
	}
	return gig
}

// CreateOrder inserts an order for gig in the given status with a 10% fee.
func CreateOrder(t testing.TB, conn *gorm.DB, gig models.Gig, buyerID uuid.UUID, status enums.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{
		ID:          uuid.New(),
		GigID:       gig.ID,
		BuyerID:     buyerID,
		Status:      status,
		Amount:      gig.Price,
		PlatformFee: gig.Price.Mul(decimal.NewFromInt(10)).Div(decimal.NewFromInt(100)).Round(2),
	}
	if status == enums.OrderStatusCompleted {
		now := time.Now().UTC()
		order.CompletedAt = &now
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
