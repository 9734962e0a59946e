package models

import "time"

// SenderType identifies who produced a timeline message.
type SenderType string

const (
	SenderTypeClient SenderType = "client"
	SenderTypeAgent  SenderType = "agent"
	SenderTypeBot    SenderType = "bot"
)

// MessageStatus tracks delivery progress of an outbound message.
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// Message is one entry in a conversation timeline. Before the server echo
// arrives an optimistic message carries only TempID; reconciliation swaps in
// the authoritative ID while keeping the entry's position.
type Message struct {
	ID                string        `json:"id,omitempty"`
	TempID            string        `json:"tempId,omitempty"`
	ConversationID    string        `json:"conversationId"`
	Content           string        `json:"content"`
	SenderType        SenderType    `json:"senderType"`
	Status            MessageStatus `json:"status,omitempty"`
	PlatformMessageID string        `json:"platformMessageId,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// IsOptimistic reports whether the message is still awaiting its server echo.
func (m *Message) IsOptimistic() bool {
	return m.ID == "" && m.TempID != ""
}

// MessageEventType classifies realtime timeline events.
type MessageEventType string

const (
	MessageEventInsert MessageEventType = "insert"
	MessageEventUpdate MessageEventType = "update"
	MessageEventDelete MessageEventType = "delete"
)

// MessageEvent is one frame of the realtime feed for a conversation.
type MessageEvent struct {
	Type    MessageEventType `json:"type"`
	Message Message          `json:"message"`
}
