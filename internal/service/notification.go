package service

import (
	"sync"

	"channelsync/internal/constants"
	"channelsync/internal/models"

	"github.com/sirupsen/logrus"
)

// ChannelNotificationSink buffers notifications for the UI layer. When the
// buffer is full the oldest event is dropped rather than blocking the
// producer; the merge and provisioning paths must never stall on a slow
// consumer.
type ChannelNotificationSink struct {
	events chan models.Notification
	logger *logrus.Logger
	mu     sync.Mutex
	closed bool
}

// NewChannelNotificationSink creates a sink with the given buffer size.
func NewChannelNotificationSink(bufferSize int, logger *logrus.Logger) *ChannelNotificationSink {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultNotificationBufferSize
	}
	return &ChannelNotificationSink{
		events: make(chan models.Notification, bufferSize),
		logger: logger,
	}
}

// Publish enqueues a notification, dropping the oldest buffered event if the
// consumer has fallen behind.
func (s *ChannelNotificationSink) Publish(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for {
		select {
		case s.events <- n:
			return
		default:
		}
		select {
		case dropped := <-s.events:
			s.logger.WithField("type", dropped.Type).Warn("Notification buffer full, dropping oldest event")
		default:
		}
	}
}

// Events exposes the notification stream to the consumer.
func (s *ChannelNotificationSink) Events() <-chan models.Notification {
	return s.events
}

// Close stops the sink. Closing twice is a no-op.
func (s *ChannelNotificationSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
