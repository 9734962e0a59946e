package service

import (
	"context"
	"time"

	"channelsync/internal/models"
	"channelsync/pkg/provider/types"
)

// Store is the persistence surface the services depend on. Implemented by
// internal/database; mocked in tests.
type Store interface {
	FindChannel(ctx context.Context, ownerID string, channelType models.ChannelType) (*models.Channel, error)
	FindChannelByResource(ctx context.Context, channelType models.ChannelType, resourceID string) (*models.Channel, error)
	GetChannelByID(ctx context.Context, id int64) (*models.Channel, error)
	UpsertChannel(ctx context.Context, ch *models.Channel) (*models.Channel, error)

	SaveChallenge(ctx context.Context, c *models.VerificationChallenge) error
	GetChallengeByChannel(ctx context.Context, channelID int64) (*models.VerificationChallenge, error)
	UpdateChallengeStatus(ctx context.Context, id string, status models.ChallengeStatus) error
	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)
}

// ClientResolver resolves a provider client for a channel type.
// Implemented by provider.Factory.
type ClientResolver interface {
	Client(t models.ChannelType) (types.Client, error)
}

// NotificationSink receives UI-facing events. Emission order is preserved;
// delivery guarantees beyond that are the consumer's concern.
type NotificationSink interface {
	Publish(n models.Notification)
}
