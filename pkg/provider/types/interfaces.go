package types

import (
	"context"

	"channelsync/internal/models"
)

// Client is the capability set every provider implementation exposes.
// Each call is a single idempotent HTTP request; retry policy is the
// caller's concern.
type Client interface {
	Type() models.ChannelType

	// ExchangeCode turns an OAuth authorization code into a token.
	ExchangeCode(ctx context.Context, code string) (*Token, error)

	// DiscoverResources enumerates connectable resources for the token.
	// Zero resources is reported as a typed NO_RESOURCES_FOUND error,
	// never as an empty slice.
	DiscoverResources(ctx context.Context, token *Token) ([]Resource, error)

	// RegisterResource performs provider-side activation of the resource.
	// Providers without a registration step return nil.
	RegisterResource(ctx context.Context, resourceID string, token *Token) error

	// SubscribeWebhook points the provider's event delivery at this service.
	SubscribeWebhook(ctx context.Context, resourceID string, token *Token) error
}
