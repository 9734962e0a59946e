package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"channelsync/internal/models"
	"channelsync/pkg/provider/types"
)

// memStore is an in-memory Store used across the service tests. It mimics
// the persistence gateway's contract: upsert by natural key, (nil, nil) on
// missing rows, consistent read-after-write.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	channels   map[string]*models.Channel // key: ownerID/type
	challenges []*models.VerificationChallenge

	upsertCalls int
	failUpsert  error
}

func newMemStore() *memStore {
	return &memStore{channels: make(map[string]*models.Channel)}
}

func channelKey(ownerID string, t models.ChannelType) string {
	return fmt.Sprintf("%s/%s", ownerID, t)
}

func (s *memStore) FindChannel(ctx context.Context, ownerID string, channelType models.ChannelType) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[channelKey(ownerID, channelType)]; ok {
		copied := *ch
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) FindChannelByResource(ctx context.Context, channelType models.ChannelType, resourceID string) (*models.Channel, error) {
	if resourceID == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.Type == channelType && ch.ResourceID() == resourceID {
			copied := *ch
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetChannelByID(ctx context.Context, id int64) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		if ch.ID == id {
			copied := *ch
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpsertChannel(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.failUpsert != nil {
		return nil, s.failUpsert
	}
	if err := ch.Validate(); err != nil {
		return nil, err
	}

	key := channelKey(ch.OwnerID, ch.Type)
	now := time.Now().UTC()
	if existing, ok := s.channels[key]; ok {
		existing.Config = ch.Config
		existing.IsConnected = ch.IsConnected
		existing.UpdatedAt = now
		copied := *existing
		return &copied, nil
	}

	s.nextID++
	stored := *ch
	stored.ID = s.nextID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.channels[key] = &stored
	copied := stored
	return &copied, nil
}

func (s *memStore) channelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

func (s *memStore) SaveChallenge(ctx context.Context, c *models.VerificationChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, existing := range s.challenges {
		if existing.ChannelID == c.ChannelID && existing.Status == models.ChallengeStatusPending {
			existing.Status = models.ChallengeStatusExpired
			existing.UpdatedAt = now
		}
	}
	stored := *c
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.challenges = append(s.challenges, &stored)
	return nil
}

func (s *memStore) GetChallengeByChannel(ctx context.Context, channelID int64) (*models.VerificationChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.challenges) - 1; i >= 0; i-- {
		if s.challenges[i].ChannelID == channelID {
			copied := *s.challenges[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpdateChallengeStatus(ctx context.Context, id string, status models.ChallengeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		if c.ID == id {
			c.Status = status
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("challenge %s not found", id)
}

func (s *memStore) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.challenges {
		if c.Status == models.ChallengeStatusPending && c.ExpiresAt.Before(now) {
			c.Status = models.ChallengeStatusExpired
			n++
		}
	}
	return n, nil
}

// fakeClient is a provider client with canned responses and call counters.
type fakeClient struct {
	mu sync.Mutex

	channelType models.ChannelType

	token       *types.Token
	exchangeErr error
	// exchangeErrCount fails the first N exchange calls, then succeeds.
	exchangeErrCount int

	resources   []types.Resource
	discoverErr error

	registerErr  error
	subscribeErr error
	// onSubscribe runs on every subscribe call before the canned error is
	// returned; used to inject cancellation mid-run.
	onSubscribe func()

	exchangeCalls  int
	discoverCalls  int
	registerCalls  int
	subscribeCalls int
}

func (c *fakeClient) Type() models.ChannelType { return c.channelType }

func (c *fakeClient) ExchangeCode(ctx context.Context, code string) (*types.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchangeCalls++
	if c.exchangeErrCount > 0 && c.exchangeCalls <= c.exchangeErrCount {
		return nil, c.exchangeErr
	}
	if c.exchangeErrCount == 0 && c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	return c.token, nil
}

func (c *fakeClient) DiscoverResources(ctx context.Context, token *types.Token) ([]types.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoverCalls++
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	return c.resources, nil
}

func (c *fakeClient) RegisterResource(ctx context.Context, resourceID string, token *types.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerCalls++
	return c.registerErr
}

func (c *fakeClient) SubscribeWebhook(ctx context.Context, resourceID string, token *types.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeCalls++
	if c.onSubscribe != nil {
		c.onSubscribe()
	}
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	return ctx.Err()
}

func (c *fakeClient) calls() (exchange, discover, register, subscribe int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchangeCalls, c.discoverCalls, c.registerCalls, c.subscribeCalls
}

// fakeResolver returns one client for every type.
type fakeResolver struct {
	client types.Client
	err    error
}

func (r *fakeResolver) Client(t models.ChannelType) (types.Client, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.client, nil
}

// captureSink records published notifications.
type captureSink struct {
	mu     sync.Mutex
	events []models.Notification
}

func (s *captureSink) Publish(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n)
}

func (s *captureSink) all() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) byType(eventType string) []models.Notification {
	var out []models.Notification
	for _, n := range s.all() {
		if n.Type == eventType {
			out = append(out, n)
		}
	}
	return out
}
