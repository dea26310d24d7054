package orders

import (
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type transitionKey struct {
	from  enums.OrderStatus
	actor enums.ActorRole
}

// lifecycleTransitions is the complete set of regular status changes. Anything
// absent is rejected.
var lifecycleTransitions = map[transitionKey]enums.OrderStatus{
	{enums.OrderStatusPaymentPending, enums.ActorGateway}: enums.OrderStatusPending,
	{enums.OrderStatusPending, enums.ActorSeller}:         enums.OrderStatusInProgress,
	{enums.OrderStatusInProgress, enums.ActorSeller}:      enums.OrderStatusDelivered,
	{enums.OrderStatusDelivered, enums.ActorBuyer}:        enums.OrderStatusCompleted,
	{enums.OrderStatusPending, enums.ActorBuyer}:          enums.OrderStatusCancelled,
}

// deliveryTransitions lets a seller deliver without first starting work.
var deliveryTransitions = map[transitionKey]enums.OrderStatus{
	{enums.OrderStatusPending, enums.ActorSeller}:    enums.OrderStatusDelivered,
	{enums.OrderStatusInProgress, enums.ActorSeller}: enums.OrderStatusDelivered,
}

// adminTargets are the statuses an admin may force. payment_pending is never a
// target because it would undo a confirmed payment.
var adminTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusPending:    true,
	enums.OrderStatusInProgress: true,
	enums.OrderStatusDelivered:  true,
	enums.OrderStatusCompleted:  true,
	enums.OrderStatusCancelled:  true,
}

// CanTransition reports whether actor may move an order from -> to.
func CanTransition(from enums.OrderStatus, actor enums.ActorRole, to enums.OrderStatus) bool {
	next, ok := lifecycleTransitions[transitionKey{from, actor}]
	return ok && next == to
}

// CanDeliver reports whether actor may submit delivery while the order is in from.
func CanDeliver(from enums.OrderStatus, actor enums.ActorRole) bool {
	_, ok := deliveryTransitions[transitionKey{from, actor}]
	return ok
}

// IsAdminTarget reports whether the admin override accepts status.
func IsAdminTarget(status enums.OrderStatus) bool {
	return adminTargets[status]
}
