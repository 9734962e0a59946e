package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"channelsync/internal/errors"
	"channelsync/internal/models"
	"channelsync/internal/retry"
	"channelsync/pkg/provider/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Provisioner drives one end-to-end "connect a channel" run: validate the
// OAuth state, exchange the code, discover resources, register and
// subscribe (best-effort), and persist idempotently.
//
// Runs for the same (ownerID, type) pair are serialized; concurrent runs
// for different pairs proceed independently.
type Provisioner struct {
	store    Store
	resolver ClientResolver
	executor *retry.Executor
	stateTTL time.Duration
	logger   *logrus.Logger

	mu       sync.Mutex
	runLocks map[string]*sync.Mutex
}

// NewProvisioner creates a provisioning pipeline.
func NewProvisioner(store Store, resolver ClientResolver, retryCfg models.RetryConfig, provCfg models.ProvisioningConfig, logger *logrus.Logger) *Provisioner {
	executor := retry.NewExecutor(retry.BackoffConfig{
		InitialDelay:      time.Duration(retryCfg.InitialBackoffMs) * time.Millisecond,
		MaxDelay:          time.Duration(retryCfg.MaxBackoffMs) * time.Millisecond,
		Multiplier:        2.0,
		MaxAttempts:       retryCfg.MaxAttempts,
		PerAttemptTimeout: time.Duration(retryCfg.AttemptTimeoutSec) * time.Second,
	}, errors.IsRetryable)

	return &Provisioner{
		store:    store,
		resolver: resolver,
		executor: executor,
		stateTTL: time.Duration(provCfg.StateTTLMinutes) * time.Minute,
		logger:   logger,
		runLocks: make(map[string]*sync.Mutex),
	}
}

// Provision runs the pipeline for one authorization code. Validation
// happens before any external call; a failure before persistence leaves no
// channel row. Registration and webhook subscription are best-effort: their
// outcome is recorded in the persisted config rather than failing the run.
func (p *Provisioner) Provision(ctx context.Context, channelType models.ChannelType, code, rawState string) (*models.Channel, error) {
	tracer := otel.Tracer("channelsync/provisioner")
	ctx, span := tracer.Start(ctx, "provision",
		oteltrace.WithAttributes(attribute.String("channel.type", string(channelType))))
	defer span.End()

	// ValidatingState: reject bad or stale state before touching any
	// external API.
	state, err := models.DecodeState(rawState)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFailed, "invalid provisioning state").
			WithUserMessage("The connection request is invalid, please restart the flow")
	}
	if err := state.Verify(time.Now(), p.stateTTL); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFailed, "provisioning state rejected").
			WithUserMessage("The connection request has expired, please restart the flow")
	}
	if code == "" {
		return nil, errors.NewValidationError("code", "authorization code is required")
	}

	span.SetAttributes(attribute.String("channel.owner", state.OwnerID))
	log := p.logger.WithFields(logrus.Fields{
		"ownerId":     state.OwnerID,
		"channelType": channelType,
	})

	// Serialize runs per (owner, type); a double-submit must not allocate
	// duplicate provider-side resources.
	unlock := p.lockRun(state.OwnerID, channelType)
	defer unlock()

	// Re-entrancy: an existing connected channel short-circuits the run.
	existing, err := p.store.FindChannel(ctx, state.OwnerID, channelType)
	if err != nil {
		return nil, errors.NewDatabaseError("find channel", err)
	}
	if existing != nil && existing.IsConnected {
		log.Info("Channel already connected, returning existing configuration")
		return existing, nil
	}

	client, err := p.resolver.Client(channelType)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "provider not configured").
			WithUserMessage("This channel type is not available")
	}

	// ExchangingToken: terminal on failure, retryable for transient errors.
	var token *types.Token
	err = p.executor.Execute(ctx, func(ctx context.Context) error {
		var exchangeErr error
		token, exchangeErr = client.ExchangeCode(ctx, code)
		return exchangeErr
	})
	if err != nil {
		return nil, err
	}

	// DiscoveringResources: zero resources is terminal but distinct from
	// error; the typed NO_RESOURCES_FOUND passes through unretried.
	var resources []types.Resource
	err = p.executor.Execute(ctx, func(ctx context.Context) error {
		var discoverErr error
		resources, discoverErr = client.DiscoverResources(ctx, token)
		return discoverErr
	})
	if err != nil {
		return nil, err
	}

	// Deterministic selection: the first resource. Recorded for audit.
	selected := resources[0]
	log.WithFields(logrus.Fields{
		"resourceId":    selected.ID,
		"resourceName":  selected.Name,
		"resourceCount": len(resources),
	}).Info("Selected provider resource")
	span.SetAttributes(attribute.String("resource.id", selected.ID))

	// Secondary dedup: a resource already bound to a different owner means
	// the provider handed out the same instance twice.
	if other, err := p.store.FindChannelByResource(ctx, channelType, selected.ID); err != nil {
		return nil, errors.NewDatabaseError("find channel by resource", err)
	} else if other != nil && other.OwnerID != state.OwnerID {
		return nil, errors.New(errors.ErrCodeValidationFailed, "resource already connected to another account").
			WithContext("resource_id", selected.ID).
			WithUserMessage("This account is already connected elsewhere")
	}

	// Registering: best-effort. A channel with an unregistered number is
	// still usably connected; the flag lets the UI surface degraded state.
	registered := false
	if err := p.executor.Execute(ctx, func(ctx context.Context) error {
		return client.RegisterResource(ctx, selected.ID, token)
	}); err != nil {
		if ctx.Err() != nil {
			// Caller cancelled mid-run; persist what already succeeded.
			return p.persist(ctx, state.OwnerID, channelType, token, selected, false, false, log)
		}
		log.WithError(err).Warn("Resource registration failed, continuing with degraded channel")
	} else {
		registered = true
	}

	// SubscribingWebhook: best-effort for the same reason.
	subscribed := false
	if err := p.executor.Execute(ctx, func(ctx context.Context) error {
		return client.SubscribeWebhook(ctx, selected.ID, token)
	}); err != nil {
		if ctx.Err() != nil {
			return p.persist(ctx, state.OwnerID, channelType, token, selected, registered, false, log)
		}
		log.WithError(err).Warn("Webhook subscription failed, continuing with degraded channel")
	} else {
		subscribed = true
	}

	// Persisting: the idempotent upsert is the single synchronization point
	// guarding against duplicate rows.
	return p.persist(ctx, state.OwnerID, channelType, token, selected, registered, subscribed, log)
}

func (p *Provisioner) persist(ctx context.Context, ownerID string, channelType models.ChannelType, token *types.Token, selected types.Resource, registered, subscribed bool, log *logrus.Entry) (*models.Channel, error) {
	// Persistence must survive caller cancellation: a registered resource
	// that never reaches the database would leak on the provider side.
	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	channel := &models.Channel{
		OwnerID:     ownerID,
		Type:        channelType,
		IsConnected: true,
		Config:      buildConfig(channelType, token, selected, registered, subscribed),
	}

	persisted, err := p.store.UpsertChannel(persistCtx, channel)
	if err != nil {
		return nil, errors.NewDatabaseError("upsert channel", err)
	}

	log.WithFields(logrus.Fields{
		"channelId":         persisted.ID,
		"phoneRegistered":   registered,
		"webhookConfigured": subscribed,
	}).Info("Channel provisioned")

	if ctx.Err() != nil {
		return persisted, ctx.Err()
	}
	return persisted, nil
}

func buildConfig(channelType models.ChannelType, token *types.Token, selected types.Resource, registered, subscribed bool) models.ChannelConfig {
	now := time.Now().UTC()

	// Prefer the resource-scoped token where the provider issued one.
	accessToken := token.AccessToken
	if selected.AccessToken != "" {
		accessToken = selected.AccessToken
	}

	switch channelType {
	case models.ChannelTypeWhatsApp:
		return models.ChannelConfig{WhatsApp: &models.WhatsAppChannelConfig{
			InstanceID:        selected.ID,
			APIToken:          token.AccessToken,
			PhoneRegistered:   registered,
			WebhookConfigured: subscribed,
			ConnectedAt:       now,
		}}
	case models.ChannelTypeFacebook:
		return models.ChannelConfig{Facebook: &models.FacebookChannelConfig{
			PageID:            selected.ID,
			PageName:          selected.Name,
			AccessToken:       accessToken,
			WebhookConfigured: subscribed,
			ConnectedAt:       now,
		}}
	case models.ChannelTypeInstagram:
		return models.ChannelConfig{Instagram: &models.InstagramChannelConfig{
			PageID:            selected.ID,
			IGAccountID:       selected.SecondaryID,
			AccessToken:       accessToken,
			WebhookConfigured: subscribed,
			ConnectedAt:       now,
		}}
	}
	return models.ChannelConfig{}
}

// lockRun acquires the per-(owner, type) run lock and returns the unlock
// function.
func (p *Provisioner) lockRun(ownerID string, channelType models.ChannelType) func() {
	key := fmt.Sprintf("%s/%s", ownerID, channelType)

	p.mu.Lock()
	lock, exists := p.runLocks[key]
	if !exists {
		lock = &sync.Mutex{}
		p.runLocks[key] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
