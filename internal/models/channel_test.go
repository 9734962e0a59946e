package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelType(t *testing.T) {
	for _, valid := range []string{"whatsapp", "facebook", "instagram"} {
		got, err := ParseChannelType(valid)
		require.NoError(t, err)
		assert.Equal(t, ChannelType(valid), got)
	}

	for _, invalid := range []string{"", "telegram", "WHATSAPP", "facebook "} {
		_, err := ParseChannelType(invalid)
		assert.Error(t, err, "expected %q to be rejected", invalid)
	}
}

func TestChannelValidate(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		wantErr bool
	}{
		{
			name: "valid whatsapp",
			channel: Channel{
				OwnerID: "o1",
				Type:    ChannelTypeWhatsApp,
				Config:  ChannelConfig{WhatsApp: &WhatsAppChannelConfig{InstanceID: "i1"}},
			},
		},
		{
			name: "valid instagram",
			channel: Channel{
				OwnerID: "o1",
				Type:    ChannelTypeInstagram,
				Config:  ChannelConfig{Instagram: &InstagramChannelConfig{PageID: "p1"}},
			},
		},
		{
			name: "no config arm",
			channel: Channel{
				OwnerID: "o1",
				Type:    ChannelTypeFacebook,
			},
			wantErr: true,
		},
		{
			name: "two config arms",
			channel: Channel{
				OwnerID: "o1",
				Type:    ChannelTypeFacebook,
				Config: ChannelConfig{
					Facebook: &FacebookChannelConfig{PageID: "p1"},
					WhatsApp: &WhatsAppChannelConfig{InstanceID: "i1"},
				},
			},
			wantErr: true,
		},
		{
			name: "arm mismatches type",
			channel: Channel{
				OwnerID: "o1",
				Type:    ChannelTypeFacebook,
				Config:  ChannelConfig{WhatsApp: &WhatsAppChannelConfig{InstanceID: "i1"}},
			},
			wantErr: true,
		},
		{
			name: "missing owner",
			channel: Channel{
				Type:   ChannelTypeFacebook,
				Config: ChannelConfig{Facebook: &FacebookChannelConfig{PageID: "p1"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.channel.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChannelResourceID(t *testing.T) {
	wa := Channel{Config: ChannelConfig{WhatsApp: &WhatsAppChannelConfig{InstanceID: "inst-9"}}}
	assert.Equal(t, "inst-9", wa.ResourceID())

	fb := Channel{Config: ChannelConfig{Facebook: &FacebookChannelConfig{PageID: "page-7"}}}
	assert.Equal(t, "page-7", fb.ResourceID())

	ig := Channel{Config: ChannelConfig{Instagram: &InstagramChannelConfig{PageID: "page-3", IGAccountID: "ig-5"}}}
	assert.Equal(t, "page-3", ig.ResourceID())

	empty := Channel{}
	assert.Empty(t, empty.ResourceID())
}

func TestChannelConfigRoundTrip(t *testing.T) {
	connected := time.Now().UTC().Truncate(time.Second)
	ch := Channel{
		OwnerID: "o1",
		Type:    ChannelTypeInstagram,
		Config: ChannelConfig{Instagram: &InstagramChannelConfig{
			PageID:            "page-1",
			IGAccountID:       "ig-1",
			AccessToken:       "tok",
			WebhookConfigured: true,
			ConnectedAt:       connected,
		}},
	}

	raw, err := ch.MarshalConfig()
	require.NoError(t, err)

	var decoded Channel
	decoded.Type = ChannelTypeInstagram
	require.NoError(t, decoded.UnmarshalConfig(raw))

	require.NotNil(t, decoded.Config.Instagram)
	assert.Equal(t, "page-1", decoded.Config.Instagram.PageID)
	assert.Equal(t, "ig-1", decoded.Config.Instagram.IGAccountID)
	assert.True(t, decoded.Config.Instagram.WebhookConfigured)
	assert.Nil(t, decoded.Config.Facebook)
	assert.Nil(t, decoded.Config.WhatsApp)
}

func TestMessageIsOptimistic(t *testing.T) {
	optimistic := Message{TempID: "tmp-1"}
	assert.True(t, optimistic.IsOptimistic())

	reconciled := Message{ID: "m-1", TempID: "tmp-1"}
	assert.False(t, reconciled.IsOptimistic())

	authoritative := Message{ID: "m-2"}
	assert.False(t, authoritative.IsOptimistic())
}

func TestChallengeIsExpired(t *testing.T) {
	now := time.Now()
	live := VerificationChallenge{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, live.IsExpired(now))

	expired := VerificationChallenge{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, expired.IsExpired(now))
}

func TestInboundWebhookPayloadEvent(t *testing.T) {
	p := InboundWebhookPayload{
		ResourceID: "res-1",
		SenderID:   "user-1",
		Text:       "hello XK29QZ",
		Timestamp:  1700000000,
	}
	event := p.Event()
	assert.Equal(t, "res-1", event.ResourceID)
	assert.Equal(t, "user-1", event.SenderID)
	assert.Equal(t, "hello XK29QZ", event.Text)
	assert.Equal(t, time.Unix(1700000000, 0), event.Timestamp)
}

func TestInboundWebhookPayloadConversationKey(t *testing.T) {
	explicit := InboundWebhookPayload{ResourceID: "res-1", SenderID: "user-1", ConversationID: "conv-9"}
	assert.Equal(t, "conv-9", explicit.ConversationKey())

	derived := InboundWebhookPayload{ResourceID: "res-1", SenderID: "user-1"}
	assert.Equal(t, "res-1:user-1", derived.ConversationKey())
}

func TestInboundWebhookPayloadMessage(t *testing.T) {
	p := InboundWebhookPayload{
		ResourceID: "res-1",
		SenderID:   "user-1",
		Text:       "hi there",
		Timestamp:  1700000000,
		MessageID:  "wamid.1",
	}
	msg := p.Message()
	assert.Equal(t, "wamid.1", msg.ID)
	assert.Equal(t, "wamid.1", msg.PlatformMessageID)
	assert.Equal(t, "res-1:user-1", msg.ConversationID)
	assert.Equal(t, "hi there", msg.Content)
	assert.Equal(t, SenderTypeClient, msg.SenderType)
	assert.Equal(t, MessageStatusSent, msg.Status)
	assert.Equal(t, time.Unix(1700000000, 0), msg.CreatedAt)
	assert.False(t, msg.IsOptimistic())
}
