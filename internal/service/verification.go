package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"channelsync/internal/constants"
	"channelsync/internal/errors"
	"channelsync/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Alphabet for challenge codes: upper-case alphanumerics minus the
// ambiguous 0/O/1/I glyphs, since users type these by hand.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// VerificationService resolves ambiguous channel identities through a
// challenge-response protocol: the user sends a one-time code to their own
// account, and the inbound webhook echo proves which provider resource the
// channel is really backed by.
type VerificationService struct {
	store  Store
	sink   NotificationSink
	cfg    models.VerificationConfig
	logger *logrus.Logger

	mu      sync.Mutex
	loops   map[int64]*pollLoop
	matches map[int64]bool // channelID -> challenge code observed inbound
}

type pollLoop struct {
	challengeID string
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// cancel stops the loop; cancelling an already-cancelled loop is a no-op.
func (l *pollLoop) cancel() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// NewVerificationService creates the challenge service.
func NewVerificationService(store Store, sink NotificationSink, cfg models.VerificationConfig, logger *logrus.Logger) *VerificationService {
	return &VerificationService{
		store:   store,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		loops:   make(map[int64]*pollLoop),
		matches: make(map[int64]bool),
	}
}

// Generate creates a new challenge for the channel, invalidating any prior
// pending one, and starts its bounded poll loop. At most one loop runs per
// channel; starting a new one cancels the old.
func (s *VerificationService) Generate(ctx context.Context, channelID int64) (*models.VerificationChallenge, error) {
	channel, err := s.store.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, errors.NewDatabaseError("get channel", err)
	}
	if channel == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "channel not found").
			WithContext("channel_id", channelID)
	}

	code, err := generateCode(constants.DefaultChallengeCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge code: %w", err)
	}

	challenge := &models.VerificationChallenge{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Code:      code,
		Status:    models.ChallengeStatusPending,
		ExpiresAt: time.Now().Add(time.Duration(s.cfg.ChallengeTTLMinutes) * time.Minute),
	}

	if err := s.store.SaveChallenge(ctx, challenge); err != nil {
		return nil, errors.NewDatabaseError("save challenge", err)
	}

	s.startPollLoop(challenge)

	s.sink.Publish(models.Notification{
		Type:      models.NotificationVerificationNeeded,
		ChannelID: channelID,
		Payload:   map[string]interface{}{"code": code, "expiresAt": challenge.ExpiresAt},
	})

	s.logger.WithFields(logrus.Fields{
		"channelId":   channelID,
		"challengeId": challenge.ID,
	}).Info("Verification challenge generated")

	return challenge, nil
}

// Status returns the channel's latest challenge, lazily expiring it when
// its deadline has passed.
func (s *VerificationService) Status(ctx context.Context, channelID int64) (*models.VerificationChallenge, error) {
	challenge, err := s.store.GetChallengeByChannel(ctx, channelID)
	if err != nil {
		return nil, errors.NewDatabaseError("get challenge", err)
	}
	if challenge == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "no challenge for channel").
			WithContext("channel_id", channelID)
	}

	if challenge.Status == models.ChallengeStatusPending && challenge.IsExpired(time.Now()) {
		if err := s.store.UpdateChallengeStatus(ctx, challenge.ID, models.ChallengeStatusExpired); err != nil {
			return nil, errors.NewDatabaseError("expire challenge", err)
		}
		challenge.Status = models.ChallengeStatusExpired
		s.cancelLoop(channelID)
	}

	return challenge, nil
}

// HandleInboundEvent inspects an inbound webhook event for challenge codes.
// An event carrying the code on a resource id that differs from the
// channel's primary id reveals the secondary identity and resolves the
// ambiguity.
func (s *VerificationService) HandleInboundEvent(ctx context.Context, event models.InboundEvent) {
	s.mu.Lock()
	channelIDs := make([]int64, 0, len(s.loops))
	for id := range s.loops {
		channelIDs = append(channelIDs, id)
	}
	s.mu.Unlock()

	for _, channelID := range channelIDs {
		challenge, err := s.store.GetChallengeByChannel(ctx, channelID)
		if err != nil || challenge == nil || challenge.Status != models.ChallengeStatusPending {
			continue
		}
		if !strings.Contains(event.Text, challenge.Code) {
			continue
		}

		channel, err := s.store.GetChannelByID(ctx, channelID)
		if err != nil || channel == nil {
			continue
		}

		if event.ResourceID != "" && event.ResourceID != channel.ResourceID() {
			if err := s.recordSecondaryIdentity(ctx, channel, event.ResourceID); err != nil {
				s.logger.WithError(err).WithField("channelId", channelID).
					Warn("Failed to record secondary identity")
				continue
			}
		}

		s.mu.Lock()
		s.matches[channelID] = true
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"channelId":  channelID,
			"resourceId": event.ResourceID,
		}).Info("Challenge code observed inbound")
	}
}

func (s *VerificationService) recordSecondaryIdentity(ctx context.Context, channel *models.Channel, secondaryID string) error {
	if channel.Config.Instagram == nil {
		return nil
	}
	channel.Config.Instagram.IGAccountID = secondaryID
	_, err := s.store.UpsertChannel(ctx, channel)
	return err
}

func (s *VerificationService) startPollLoop(challenge *models.VerificationChallenge) {
	s.mu.Lock()
	if old, exists := s.loops[challenge.ChannelID]; exists {
		old.cancel()
	}
	loop := &pollLoop{
		challengeID: challenge.ID,
		stopCh:      make(chan struct{}),
	}
	s.loops[challenge.ChannelID] = loop
	delete(s.matches, challenge.ChannelID)
	s.mu.Unlock()

	go s.poll(challenge.ChannelID, loop)
}

// poll checks every interval whether the challenge is satisfied. The loop
// self-cancels at a hard ceiling regardless of the challenge's own expiry,
// so a missed sweep cannot leak goroutines.
func (s *VerificationService) poll(channelID int64, loop *pollLoop) {
	interval := time.Duration(s.cfg.PollIntervalSec) * time.Second
	ceiling := time.Duration(s.cfg.PollCeilingMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()

	for {
		select {
		case <-loop.stopCh:
			return
		case <-deadline.C:
			s.logger.WithField("channelId", channelID).Warn("Verification poll ceiling reached, cancelling loop")
			s.removeLoop(channelID, loop)
			return
		case <-ticker.C:
			if s.checkOnce(channelID, loop) {
				return
			}
		}
	}
}

// checkOnce runs one poll iteration; it reports true when the loop should
// stop.
func (s *VerificationService) checkOnce(channelID int64, loop *pollLoop) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultHTTPTimeoutSec)*time.Second)
	defer cancel()

	challenge, err := s.store.GetChallengeByChannel(ctx, channelID)
	if err != nil {
		s.logger.WithError(err).WithField("channelId", channelID).Error("Failed to load challenge during poll")
		return false
	}
	if challenge == nil || challenge.ID != loop.challengeID || challenge.Status != models.ChallengeStatusPending {
		// Superseded or already resolved elsewhere.
		s.removeLoop(channelID, loop)
		return true
	}

	if challenge.IsExpired(time.Now()) {
		if err := s.store.UpdateChallengeStatus(ctx, challenge.ID, models.ChallengeStatusExpired); err != nil {
			s.logger.WithError(err).Error("Failed to expire challenge")
		}
		s.removeLoop(channelID, loop)
		return true
	}

	channel, err := s.store.GetChannelByID(ctx, channelID)
	if err != nil || channel == nil {
		return false
	}

	s.mu.Lock()
	matched := s.matches[channelID]
	s.mu.Unlock()

	if matched && identityResolved(channel) {
		if err := s.store.UpdateChallengeStatus(ctx, challenge.ID, models.ChallengeStatusCompleted); err != nil {
			s.logger.WithError(err).Error("Failed to complete challenge")
			return false
		}
		s.sink.Publish(models.Notification{
			Type:      models.NotificationVerificationCompleted,
			ChannelID: channelID,
			Payload:   map[string]interface{}{"challengeId": challenge.ID},
		})
		s.logger.WithField("channelId", channelID).Info("Verification challenge completed")
		s.removeLoop(channelID, loop)
		return true
	}

	return false
}

// identityResolved reports whether the channel's backing resource exposes a
// non-ambiguous identity: a secondary id that exists and differs from the
// primary.
func identityResolved(channel *models.Channel) bool {
	ig := channel.Config.Instagram
	if ig == nil {
		// Non-Instagram channels have no secondary identity to resolve.
		return true
	}
	return ig.IGAccountID != "" && ig.IGAccountID != ig.PageID
}

func (s *VerificationService) removeLoop(channelID int64, loop *pollLoop) {
	loop.cancel()
	s.mu.Lock()
	if current, exists := s.loops[channelID]; exists && current == loop {
		delete(s.loops, channelID)
		delete(s.matches, channelID)
	}
	s.mu.Unlock()
}

func (s *VerificationService) cancelLoop(channelID int64) {
	s.mu.Lock()
	loop, exists := s.loops[channelID]
	if exists {
		delete(s.loops, channelID)
		delete(s.matches, channelID)
	}
	s.mu.Unlock()
	if exists {
		loop.cancel()
	}
}

// SweepExpired is the periodic cleanup task: it expires pending challenges
// past their deadline and cancels their poll loops. It runs independently
// of any one challenge's loop.
func (s *VerificationService) SweepExpired(ctx context.Context) error {
	n, err := s.store.DeleteExpiredChallenges(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.WithField("count", n).Info("Swept expired verification challenges")
	}

	// Drop loops whose challenge is no longer pending.
	s.mu.Lock()
	stale := make(map[int64]*pollLoop)
	for channelID, loop := range s.loops {
		stale[channelID] = loop
	}
	s.mu.Unlock()

	for channelID, loop := range stale {
		challenge, err := s.store.GetChallengeByChannel(ctx, channelID)
		if err != nil {
			continue
		}
		if challenge == nil || challenge.Status != models.ChallengeStatusPending {
			s.removeLoop(channelID, loop)
		}
	}
	return nil
}

// Shutdown cancels all poll loops.
func (s *VerificationService) Shutdown() {
	s.mu.Lock()
	loops := make([]*pollLoop, 0, len(s.loops))
	for _, loop := range s.loops {
		loops = append(loops, loop)
	}
	s.loops = make(map[int64]*pollLoop)
	s.matches = make(map[int64]bool)
	s.mu.Unlock()

	for _, loop := range loops {
		loop.cancel()
	}
}

func generateCode(length int) (string, error) {
	code := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
