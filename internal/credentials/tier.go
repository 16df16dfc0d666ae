// Package credentials keeps the access, refresh and admin tokens of a client in two
// redundant tiers: one that ends with the browsing session and one that survives it.
package credentials

import (
	"context"

	"github.com/medcart/storefront-gateway/internal/models"
)

// Tier is a single credential namespace. Get returns gwerrors.ErrTokenNotFound when the key
// is missing, Remove and Clear succeed when nothing is stored.
type Tier interface {
	Name() string
	Get(ctx context.Context, key models.CredentialKey) (string, error)
	Set(ctx context.Context, key models.CredentialKey, value string) error
	Remove(ctx context.Context, keys ...models.CredentialKey) error
	Clear(ctx context.Context) error
}
