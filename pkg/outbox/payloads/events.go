package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Checkout channels recorded on OrderCreatedEvent.
const (
	ChannelStripe = "stripe"
	ChannelDirect = "direct"
)

// OrderCreatedEvent is emitted when checkout inserts a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	GigID       uuid.UUID         `json:"gig_id"`
	BuyerID     uuid.UUID         `json:"buyer_id"`
	SellerID    uuid.UUID         `json:"seller_id"`
	Status      enums.OrderStatus `json:"status"`
	Amount      decimal.Decimal   `json:"amount"`
	PlatformFee decimal.Decimal   `json:"platform_fee"`
	Channel     string            `json:"channel"`
}

// OrderPaymentConfirmedEvent is emitted when the gateway confirms payment.
type OrderPaymentConfirmedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
}

// OrderStatusChangedEvent accompanies every applied lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	GigID     uuid.UUID         `json:"gig_id"`
	BuyerID   uuid.UUID         `json:"buyer_id"`
	SellerID  uuid.UUID         `json:"seller_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	Actor     enums.ActorRole   `json:"actor"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderDeliveredEvent tells the buyer that work product is available.
type OrderDeliveredEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	DeliveryFileURL *string   `json:"delivery_file_url,omitempty"`
	DeliveryLink    *string   `json:"delivery_link,omitempty"`
	DeliveredAt     time.Time `json:"delivered_at"`
}

// OrderCompletedEvent carries the amount credited to the seller.
type OrderCompletedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	GigID       uuid.UUID       `json:"gig_id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	Amount      decimal.Decimal `json:"amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

// OrderCheckoutDiscardedEvent records removal of an order whose payment never
// happened.
type OrderCheckoutDiscardedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	GigID   uuid.UUID `json:"gig_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
	Reason  string    `json:"reason"`
}

// ReviewCreatedEvent includes the recomputed averages.
type ReviewCreatedEvent struct {
	ReviewID            uuid.UUID       `json:"review_id"`
	OrderID             uuid.UUID       `json:"order_id"`
	GigID               uuid.UUID       `json:"gig_id"`
	SellerID            uuid.UUID       `json:"seller_id"`
	Rating              int             `json:"rating"`
	GigAverageRating    decimal.Decimal `json:"gig_average_rating"`
	SellerAverageRating decimal.Decimal `json:"seller_average_rating"`
}
