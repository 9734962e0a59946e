package types

import "time"

// Token is the credential obtained from a provider's code exchange. For
// instance-based providers InstanceID carries the allocated instance.
type Token struct {
	AccessToken string    `json:"accessToken"`
	InstanceID  string    `json:"instanceId,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// Resource is a connectable provider resource: a Facebook Page, an
// Instagram business account, or a WhatsApp instance. SecondaryID carries
// the linked secondary identity where the provider exposes one (e.g. the
// Instagram account behind a Page); a missing or identical secondary id
// marks the identity as ambiguous. AccessToken is the resource-scoped token
// where the provider issues one (page tokens).
type Resource struct {
	ID          string `json:"id"`
	SecondaryID string `json:"secondaryId,omitempty"`
	Name        string `json:"name,omitempty"`
	AccessToken string `json:"-"`
}
