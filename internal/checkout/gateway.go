package checkout

import (
	"context"

	pkgstripe "github.com/angelmondragon/gigmarket-backend/pkg/stripe"
)

// Gateway opens hosted payment sessions. *pkgstripe.Client satisfies it.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutSessionRequest) (*pkgstripe.CheckoutSession, error)
}

var _ Gateway = (*pkgstripe.Client)(nil)
