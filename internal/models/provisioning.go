package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// ProvisioningState is the ephemeral blob carried through the OAuth state
// parameter. It binds the callback to the owner that initiated the flow.
type ProvisioningState struct {
	OwnerID  string    `json:"ownerId"`
	IssuedAt time.Time `json:"issuedAt"`
	Nonce    string    `json:"nonce"`
}

// EncodeState serializes a provisioning state into the opaque form placed in
// the OAuth state parameter.
func EncodeState(state ProvisioningState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeState parses an opaque state blob. It does not check the TTL; see
// ProvisioningState.Verify.
func DecodeState(raw string) (*ProvisioningState, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty state")
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed state encoding: %w", err)
	}
	var state ProvisioningState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("malformed state payload: %w", err)
	}
	return &state, nil
}

// Verify checks the structural invariants and the TTL against now.
func (s *ProvisioningState) Verify(now time.Time, ttl time.Duration) error {
	if s.OwnerID == "" {
		return fmt.Errorf("state missing owner id")
	}
	if s.IssuedAt.IsZero() {
		return fmt.Errorf("state missing issue time")
	}
	if now.Sub(s.IssuedAt) > ttl {
		return fmt.Errorf("state expired: issued %s ago, ttl %s", now.Sub(s.IssuedAt).Round(time.Second), ttl)
	}
	return nil
}
