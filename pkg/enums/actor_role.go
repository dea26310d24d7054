package enums

import "fmt"

// ActorRole is the relationship of a caller to a specific order.
type ActorRole string

const (
	ActorBuyer   ActorRole = "buyer"
	ActorSeller  ActorRole = "seller"
	ActorGateway ActorRole = "gateway"
	ActorAdmin   ActorRole = "admin"
	ActorSystem  ActorRole = "system"
)

func (r ActorRole) String() string {
	return string(r)
}

// OrderListRole selects which side of the marketplace an order listing shows.
type OrderListRole string

const (
	OrderListBuyer  OrderListRole = "buyer"
	OrderListSeller OrderListRole = "seller"
)

// ParseOrderListRole defaults to the buyer view when value is empty.
func ParseOrderListRole(value string) (OrderListRole, error) {
	switch value {
	case "", string(OrderListBuyer):
		return OrderListBuyer, nil
	case string(OrderListSeller):
		return OrderListSeller, nil
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// UserRole is the platform-wide role carried in access tokens.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) IsAdmin() bool {
	return r == UserRoleAdmin
}
