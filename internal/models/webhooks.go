package models

import "time"

// Notification event types emitted to the UI-facing sink.
const (
	NotificationVerificationNeeded    = "verification_needed"
	NotificationVerificationCompleted = "verification_completed"
	NotificationMessageReceived       = "message_received"
)

// Notification is an event surfaced to the consuming UI. Delivery beyond
// "eventually, in emission order" is the consumer's concern.
type Notification struct {
	Type           string                 `json:"type"`
	ChannelID      int64                  `json:"channelId,omitempty"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

// InboundEvent is the slice of a provider webhook payload the core needs:
// which resource it arrived on, who sent it, and the text.
type InboundEvent struct {
	ResourceID string    `json:"resourceId"`
	SenderID   string    `json:"senderId"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// InboundWebhookPayload is the wire shape of the inbound webhook endpoint.
// Timestamps arrive as unix seconds. ConversationID and MessageID are
// optional; providers that omit them get a derived per-sender thread and
// content-window dedup instead of id-based dedup.
type InboundWebhookPayload struct {
	ResourceID     string `json:"resourceId"`
	SenderID       string `json:"senderId"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

// Event converts the wire payload into the internal event form.
func (p *InboundWebhookPayload) Event() InboundEvent {
	return InboundEvent{
		ResourceID: p.ResourceID,
		SenderID:   p.SenderID,
		Text:       p.Text,
		Timestamp:  time.Unix(p.Timestamp, 0),
	}
}

// ConversationKey returns the timeline this event belongs to. Without an
// explicit conversation id the event lands in a per-sender thread on the
// receiving resource.
func (p *InboundWebhookPayload) ConversationKey() string {
	if p.ConversationID != "" {
		return p.ConversationID
	}
	return p.ResourceID + ":" + p.SenderID
}

// Message converts the payload into a timeline entry for the sync layer.
func (p *InboundWebhookPayload) Message() Message {
	return Message{
		ID:                p.MessageID,
		ConversationID:    p.ConversationKey(),
		Content:           p.Text,
		SenderType:        SenderTypeClient,
		Status:            MessageStatusSent,
		PlatformMessageID: p.MessageID,
		CreatedAt:         time.Unix(p.Timestamp, 0),
	}
}
