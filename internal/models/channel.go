package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChannelType identifies the provider backing a channel.
type ChannelType string

const (
	ChannelTypeWhatsApp  ChannelType = "whatsapp"
	ChannelTypeFacebook  ChannelType = "facebook"
	ChannelTypeInstagram ChannelType = "instagram"
)

// ParseChannelType validates a raw channel type string.
func ParseChannelType(s string) (ChannelType, error) {
	switch ChannelType(s) {
	case ChannelTypeWhatsApp, ChannelTypeFacebook, ChannelTypeInstagram:
		return ChannelType(s), nil
	}
	return "", fmt.Errorf("unknown channel type: %q", s)
}

// Channel represents a connected communication endpoint. At most one channel
// exists per (OwnerID, Type); re-provisioning updates the existing row.
type Channel struct {
	ID          int64         `json:"id"`
	OwnerID     string        `json:"ownerId"`
	Type        ChannelType   `json:"type"`
	Config      ChannelConfig `json:"config"`
	IsConnected bool          `json:"isConnected"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ResourceID returns the provider resource id recorded for this channel,
// used as a secondary dedup key during persistence.
func (c *Channel) ResourceID() string {
	switch {
	case c.Config.WhatsApp != nil:
		return c.Config.WhatsApp.InstanceID
	case c.Config.Facebook != nil:
		return c.Config.Facebook.PageID
	case c.Config.Instagram != nil:
		return c.Config.Instagram.PageID
	}
	return ""
}

// ChannelConfig is a tagged union of provider-specific configuration.
// Exactly one arm is set, matching the channel type.
type ChannelConfig struct {
	WhatsApp  *WhatsAppChannelConfig  `json:"whatsapp,omitempty"`
	Facebook  *FacebookChannelConfig  `json:"facebook,omitempty"`
	Instagram *InstagramChannelConfig `json:"instagram,omitempty"`
}

// WhatsAppChannelConfig holds Green-API style instance configuration.
type WhatsAppChannelConfig struct {
	InstanceID        string    `json:"instanceId"`
	APIToken          string    `json:"apiToken"`
	PhoneRegistered   bool      `json:"phoneRegistered"`
	WebhookConfigured bool      `json:"webhookConfigured"`
	ConnectedAt       time.Time `json:"connectedAt"`
}

// FacebookChannelConfig holds a connected Facebook Page.
type FacebookChannelConfig struct {
	PageID            string    `json:"pageId"`
	PageName          string    `json:"pageName,omitempty"`
	AccessToken       string    `json:"accessToken"`
	WebhookConfigured bool      `json:"webhookConfigured"`
	ConnectedAt       time.Time `json:"connectedAt"`
}

// InstagramChannelConfig holds a connected Instagram business account.
// IGAccountID is the secondary identity; when it is empty or equal to the
// page id the account identity is ambiguous and requires verification.
type InstagramChannelConfig struct {
	PageID            string    `json:"pageId"`
	IGAccountID       string    `json:"igAccountId,omitempty"`
	AccessToken       string    `json:"accessToken"`
	WebhookConfigured bool      `json:"webhookConfigured"`
	ConnectedAt       time.Time `json:"connectedAt"`
}

// Validate checks that exactly one config arm is set and matches the type.
func (c *Channel) Validate() error {
	arms := 0
	if c.Config.WhatsApp != nil {
		arms++
		if c.Type != ChannelTypeWhatsApp {
			return fmt.Errorf("whatsapp config on %s channel", c.Type)
		}
	}
	if c.Config.Facebook != nil {
		arms++
		if c.Type != ChannelTypeFacebook {
			return fmt.Errorf("facebook config on %s channel", c.Type)
		}
	}
	if c.Config.Instagram != nil {
		arms++
		if c.Type != ChannelTypeInstagram {
			return fmt.Errorf("instagram config on %s channel", c.Type)
		}
	}
	if arms != 1 {
		return fmt.Errorf("channel config must have exactly one provider arm, got %d", arms)
	}
	if c.OwnerID == "" {
		return fmt.Errorf("channel owner id is required")
	}
	return nil
}

// MarshalConfig serializes the provider config for storage.
func (c *Channel) MarshalConfig() (string, error) {
	data, err := json.Marshal(c.Config)
	if err != nil {
		return "", fmt.Errorf("failed to marshal channel config: %w", err)
	}
	return string(data), nil
}

// UnmarshalConfig deserializes the provider config from storage.
func (c *Channel) UnmarshalConfig(raw string) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &c.Config); err != nil {
		return fmt.Errorf("failed to unmarshal channel config: %w", err)
	}
	return nil
}
