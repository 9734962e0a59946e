package service

import (
	"sort"
	"sync"
	"time"

	"channelsync/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Timeline maintains one conversation's ordered message view, merging the
// backend's realtime event stream with locally-issued optimistic sends.
//
// The merge is applied atomically per event under a single mutex; stream
// events and optimistic sends are concurrent producers into one view.
type Timeline struct {
	conversationID   string
	optimisticWindow time.Duration
	dedupWindow      time.Duration
	localSender      models.SenderType
	sink             NotificationSink
	logger           *logrus.Logger

	mu       sync.Mutex
	messages []models.Message
	pending  map[string]struct{} // tempIDs awaiting their server echo
}

// NewTimeline creates a timeline for one conversation. localSender marks
// which sender type originates from this process; inserts from any other
// sender raise a message_received notification.
func NewTimeline(conversationID string, cfg models.SyncConfig, localSender models.SenderType, sink NotificationSink, logger *logrus.Logger) *Timeline {
	return &Timeline{
		conversationID:   conversationID,
		optimisticWindow: time.Duration(cfg.OptimisticWindowSec) * time.Second,
		dedupWindow:      time.Duration(cfg.DedupWindowSec) * time.Second,
		localSender:      localSender,
		sink:             sink,
		logger:           logger,
		pending:          make(map[string]struct{}),
	}
}

// SendOptimistic adds a locally-issued message to the timeline ahead of its
// server echo and returns the entry with its transient id.
func (t *Timeline) SendOptimistic(content string, senderType models.SenderType) models.Message {
	msg := models.Message{
		TempID:         uuid.NewString(),
		ConversationID: t.conversationID,
		Content:        content,
		SenderType:     senderType,
		Status:         models.MessageStatusPending,
		CreatedAt:      time.Now(),
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.pending[msg.TempID] = struct{}{}
	t.mu.Unlock()

	return msg
}

// Apply merges one stream event into the timeline.
func (t *Timeline) Apply(event models.MessageEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Type {
	case models.MessageEventInsert:
		t.applyInsert(event.Message)
	case models.MessageEventUpdate:
		t.applyUpdate(event.Message)
	case models.MessageEventDelete:
		t.applyDelete(event.Message)
	}
}

func (t *Timeline) applyInsert(msg models.Message) {
	// Already applied: authoritative id seen before.
	if msg.ID != "" && t.indexByID(msg.ID) >= 0 {
		return
	}

	// Optimistic reconciliation: the server echo of a local send replaces
	// the transient entry in place, keeping its position.
	if idx := t.matchOptimistic(msg); idx >= 0 {
		tempID := t.messages[idx].TempID
		msg.Status = models.MessageStatusSent
		t.messages[idx] = msg
		delete(t.pending, tempID)
		return
	}

	// General dedup: an identical message inside the tighter window is
	// treated as a re-delivery. Suppressing a possible double-delivery is
	// preferred over showing a visual duplicate.
	if t.isDuplicate(msg) {
		t.logger.WithFields(logrus.Fields{
			"conversationId": t.conversationID,
			"messageId":      msg.ID,
		}).Debug("Suppressed duplicate insert")
		return
	}

	t.messages = append(t.messages, msg)
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].CreatedAt.Before(t.messages[j].CreatedAt)
	})

	if msg.SenderType != t.localSender {
		t.sink.Publish(models.Notification{
			Type:           models.NotificationMessageReceived,
			ConversationID: t.conversationID,
			Payload:        map[string]interface{}{"messageId": msg.ID, "senderType": string(msg.SenderType)},
		})
	}
}

// matchOptimistic finds a pending optimistic row matching the inbound
// insert. The window here is wider than the general dedup window because a
// matching optimistic row is a known-certain reconciliation, not a
// heuristic.
func (t *Timeline) matchOptimistic(msg models.Message) int {
	for i, existing := range t.messages {
		if !existing.IsOptimistic() {
			continue
		}
		if _, isPending := t.pending[existing.TempID]; !isPending {
			continue
		}
		if existing.Content != msg.Content || existing.SenderType != msg.SenderType {
			continue
		}
		if absDuration(msg.CreatedAt.Sub(existing.CreatedAt)) <= t.optimisticWindow {
			return i
		}
	}
	return -1
}

func (t *Timeline) isDuplicate(msg models.Message) bool {
	for _, existing := range t.messages {
		if existing.Content != msg.Content || existing.SenderType != msg.SenderType {
			continue
		}
		if absDuration(msg.CreatedAt.Sub(existing.CreatedAt)) <= t.dedupWindow {
			return true
		}
	}
	return false
}

func (t *Timeline) applyUpdate(msg models.Message) {
	if idx := t.indexByID(msg.ID); idx >= 0 {
		// Position is preserved; only content and status fields move.
		msg.CreatedAt = t.messages[idx].CreatedAt
		t.messages[idx] = msg
	}
}

func (t *Timeline) applyDelete(msg models.Message) {
	if idx := t.indexByID(msg.ID); idx >= 0 {
		t.messages = append(t.messages[:idx], t.messages[idx+1:]...)
	}
}

func (t *Timeline) indexByID(id string) int {
	for i, m := range t.messages {
		if m.ID != "" && m.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot returns a copy of the current ordered timeline.
func (t *Timeline) Snapshot() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// PendingCount reports how many optimistic messages still await their echo.
func (t *Timeline) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// SyncManager owns the per-conversation timelines.
type SyncManager struct {
	cfg         models.SyncConfig
	localSender models.SenderType
	sink        NotificationSink
	logger      *logrus.Logger

	mu        sync.RWMutex
	timelines map[string]*Timeline
}

// NewSyncManager creates the timeline registry.
func NewSyncManager(cfg models.SyncConfig, sink NotificationSink, logger *logrus.Logger) *SyncManager {
	return &SyncManager{
		cfg:         cfg,
		localSender: models.SenderTypeAgent,
		sink:        sink,
		logger:      logger,
		timelines:   make(map[string]*Timeline),
	}
}

// Timeline returns the timeline for a conversation, creating it on first
// use.
func (m *SyncManager) Timeline(conversationID string) *Timeline {
	m.mu.RLock()
	t, exists := m.timelines[conversationID]
	m.mu.RUnlock()
	if exists {
		return t
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, exists := m.timelines[conversationID]; exists {
		return t
	}
	t = NewTimeline(conversationID, m.cfg, m.localSender, m.sink, m.logger)
	m.timelines[conversationID] = t
	return t
}

// Apply routes a stream event to its conversation's timeline.
func (m *SyncManager) Apply(conversationID string, event models.MessageEvent) {
	m.Timeline(conversationID).Apply(event)
}
