package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// TransitionInput is a buyer or seller asking for a status change.
type TransitionInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	IsAdmin bool
	Target  enums.OrderStatus
}

// AdminStatusInput forces a post-payment status.
type AdminStatusInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Target  enums.OrderStatus
}

// TransitionResult reports the status before and after a change. Changed is
// false when the call was a no-op.
type TransitionResult struct {
	OrderID   uuid.UUID         `json:"order_id"`
	OldStatus enums.OrderStatus `json:"old_status"`
	NewStatus enums.OrderStatus `json:"new_status"`
	Changed   bool              `json:"-"`
}

// DeliveryUpdate carries seller work product. Nil fields keep their stored value.
type DeliveryUpdate struct {
	OrderID  uuid.UUID
	SellerID uuid.UUID
	FileURL  *string
	Link     *string
	Note     *string
}

// Viewer identifies who is reading an order.
type Viewer struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// ListInput selects one side of the caller's orders.
type ListInput struct {
	UserID uuid.UUID
	Role   enums.OrderListRole
	Status *enums.OrderStatus
	Params pagination.Params
}

type listQuery struct {
	UserID uuid.UUID
	Role   enums.OrderListRole
	Status *enums.OrderStatus
	Limit  int
	Cursor *pagination.Cursor
}

// GigSummary is the slice of the gig shown next to an order.
type GigSummary struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	SellerID uuid.UUID `json:"seller_id"`
}

// OrderDetail is the API representation of an order.
type OrderDetail struct {
	ID               uuid.UUID         `json:"id"`
	GigID            uuid.UUID         `json:"gig_id"`
	BuyerID          uuid.UUID         `json:"buyer_id"`
	Status           enums.OrderStatus `json:"status"`
	Requirements     string            `json:"requirements"`
	Amount           decimal.Decimal   `json:"amount"`
	PlatformFee      decimal.Decimal   `json:"platform_fee"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	DeliveryFileURL  *string           `json:"delivery_file_url,omitempty"`
	DeliveryLink     *string           `json:"delivery_link,omitempty"`
	DeliveryNote     *string           `json:"delivery_note,omitempty"`
	DeliveredAt      *time.Time        `json:"delivered_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Gig              *GigSummary       `json:"gig,omitempty"`
}

// OrderList wraps one page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDetail `json:"orders"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// DetailFromModel maps an order row to its API shape.
func DetailFromModel(order *models.Order) OrderDetail {
	detail := OrderDetail{
		ID:               order.ID,
		GigID:            order.GigID,
		BuyerID:          order.BuyerID,
		Status:           order.Status,
		Requirements:     order.Requirements,
		Amount:           order.Amount,
		PlatformFee:      order.PlatformFee,
		PaymentReference: order.PaymentReference,
		DeliveryFileURL:  order.DeliveryFileURL,
		DeliveryLink:     order.DeliveryLink,
		DeliveryNote:     order.DeliveryNote,
		DeliveredAt:      order.DeliveredAt,
		CompletedAt:      order.CompletedAt,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	if order.Gig != nil {
		detail.Gig = &GigSummary{
			ID:       order.Gig.ID,
			Title:    order.Gig.Title,
			SellerID: order.Gig.SellerID,
		}
	}
	return detail
}
