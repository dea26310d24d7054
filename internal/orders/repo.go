package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error
	DeletePaymentPending(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, query listQuery) ([]models.Order, *pagination.Cursor, error)
	FindStalePaymentPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// immutableColumns are fixed at insert.
var immutableColumns = []string{"id", "gig_id", "buyer_id", "amount", "platform_fee", "created_at"}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Gig").Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Gig").Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindForUpdate row-locks the order for the rest of the transaction.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	var gig models.Gig
	if err := r.db.WithContext(ctx).Where("id = ?", order.GigID).First(&gig).Error; err != nil {
		return nil, fmt.Errorf("load gig for order: %w", err)
	}
	order.Gig = &gig
	return &order, nil
}

// CompareAndSwapStatus applies updates only while the row still has status
// from. It returns false when another writer got there first.
func (r *repository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	for _, col := range immutableColumns {
		if _, ok := updates[col]; ok {
			return false, fmt.Errorf("column %s cannot be updated", col)
		}
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("payment_reference", reference).Error
}

// DeletePaymentPending removes an order that never got paid.
func (r *repository) DeletePaymentPending(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, enums.OrderStatusPaymentPending).
		Delete(&models.Order{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.Order, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(query.Limit)
	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Gig")

	switch query.Role {
	case enums.OrderListSeller:
		q = q.Where("orders.gig_id IN (?)", r.db.Model(&models.Gig{}).Select("id").Where("seller_id = ?", query.UserID))
	default:
		q = q.Where("orders.buyer_id = ?", query.UserID)
	}
	if query.Status != nil {
		q = q.Where("orders.status = ?", *query.Status)
	}
	if query.Cursor != nil {
		q = q.Where("(orders.created_at < ?) OR (orders.created_at = ? AND orders.id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []models.Order
	if err := q.Order("orders.created_at DESC, orders.id DESC").Limit(pagination.LimitWithBuffer(query.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) > normalized {
		rows = rows[:normalized]
		last := rows[normalized-1]
		return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return rows, nil, nil
}

// FindStalePaymentPending returns ids of unpaid orders created before cutoff,
// oldest first.
func (r *repository) FindStalePaymentPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND created_at < ?", enums.OrderStatusPaymentPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
