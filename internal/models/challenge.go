package models

import "time"

// ChallengeStatus is the lifecycle state of a verification challenge.
type ChallengeStatus string

const (
	ChallengeStatusPending   ChallengeStatus = "pending"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusExpired   ChallengeStatus = "expired"
)

// VerificationChallenge is a short-lived one-time code used to disambiguate
// a channel's account identity via an out-of-band inbound message.
// Only one active challenge exists per channel; generating a new one
// invalidates the prior pending one.
type VerificationChallenge struct {
	ID        string          `json:"id"`
	ChannelID int64           `json:"channelId"`
	Code      string          `json:"code"`
	Status    ChallengeStatus `json:"status"`
	ExpiresAt time.Time       `json:"expiresAt"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// IsExpired reports whether the challenge has passed its expiry at now.
func (c *VerificationChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
