package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"channelsync/internal/errors"
	"channelsync/internal/models"
	"channelsync/pkg/provider/types"

	"github.com/sirupsen/logrus"
)

const providerName = "whatsapp"

// GreenAPIClient drives a Green-API style instance-based WhatsApp service.
// The provider allocates one instance per connected number; the instance id
// doubles as the resource id. The provider does NOT deduplicate instance
// allocation on its side, so the caller must not re-run the exchange for an
// already-connected channel.
type GreenAPIClient struct {
	cfg    models.WhatsAppProviderConfig
	client *http.Client
	logger *logrus.Logger
}

// NewClient creates a Green-API style WhatsApp client.
func NewClient(cfg models.WhatsAppProviderConfig, httpClient *http.Client, logger *logrus.Logger) *GreenAPIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GreenAPIClient{
		cfg:    cfg,
		client: httpClient,
		logger: logger,
	}
}

func (c *GreenAPIClient) Type() models.ChannelType {
	return models.ChannelTypeWhatsApp
}

type instanceResponse struct {
	IDInstance       string `json:"idInstance"`
	APITokenInstance string `json:"apiTokenInstance"`
}

// ExchangeCode redeems an authorization code for a WhatsApp instance and
// its API token.
func (c *GreenAPIClient) ExchangeCode(ctx context.Context, code string) (*types.Token, error) {
	payload := map[string]interface{}{
		"partnerToken": c.cfg.PartnerToken,
		"code":         code,
	}

	endpoint := "/partner/exchangeCode"
	var resp instanceResponse
	if err := c.postJSON(ctx, endpoint, payload, &resp); err != nil {
		return nil, err
	}

	if resp.IDInstance == "" || resp.APITokenInstance == "" {
		return nil, errors.New(errors.ErrCodeAuthentication, "code exchange returned an incomplete instance").
			WithContext("provider", providerName)
	}

	return &types.Token{
		AccessToken: resp.APITokenInstance,
		InstanceID:  resp.IDInstance,
	}, nil
}

type stateResponse struct {
	StateInstance string `json:"stateInstance"`
}

// DiscoverResources confirms the allocated instance exists and surfaces it
// as the single connectable resource.
func (c *GreenAPIClient) DiscoverResources(ctx context.Context, token *types.Token) ([]types.Resource, error) {
	if token.InstanceID == "" {
		return nil, errors.NewNoResourcesError(providerName)
	}

	endpoint := fmt.Sprintf("/waInstance%s/getStateInstance/%s", token.InstanceID, token.AccessToken)
	var resp stateResponse
	if err := c.getJSON(ctx, endpoint, "/getStateInstance", &resp); err != nil {
		return nil, err
	}

	if resp.StateInstance == "" || resp.StateInstance == "notExist" {
		return nil, errors.NewNoResourcesError(providerName)
	}

	return []types.Resource{{ID: token.InstanceID, Name: "whatsapp instance"}}, nil
}

type boolResponse struct {
	Success bool `json:"success"`
}

// RegisterResource registers the phone number on the instance.
func (c *GreenAPIClient) RegisterResource(ctx context.Context, resourceID string, token *types.Token) error {
	endpoint := fmt.Sprintf("/waInstance%s/registerAccount/%s", resourceID, token.AccessToken)
	var resp boolResponse
	if err := c.postJSON(ctx, endpoint, map[string]interface{}{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(errors.ErrCodeTransient, "account registration was not acknowledged").
			WithContext("provider", providerName).
			WithContext("resource_id", resourceID)
	}
	return nil
}

// SubscribeWebhook points the instance's notification delivery at this
// service.
func (c *GreenAPIClient) SubscribeWebhook(ctx context.Context, resourceID string, token *types.Token) error {
	payload := map[string]interface{}{
		"webhookUrl":             c.cfg.WebhookURL,
		"incomingWebhook":        "yes",
		"stateWebhook":           "yes",
		"outgoingMessageWebhook": "no",
	}

	endpoint := fmt.Sprintf("/waInstance%s/setSettings/%s", resourceID, token.AccessToken)
	var resp boolResponse
	if err := c.postJSON(ctx, endpoint, payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(errors.ErrCodeTransient, "webhook settings were not acknowledged").
			WithContext("provider", providerName).
			WithContext("resource_id", resourceID)
	}
	return nil
}

func (c *GreenAPIClient) postJSON(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, redact(endpoint), out)
}

func (c *GreenAPIClient) getJSON(ctx context.Context, path, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, endpoint, out)
}

func (c *GreenAPIClient) do(req *http.Request, endpoint string, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewNetworkError(providerName, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewNetworkError(providerName, endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("WhatsApp API call failed")
		return errors.NewProviderError(providerName, endpoint, resp.StatusCode,
			fmt.Errorf("request failed with status %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// redact strips instance tokens from endpoint paths before they reach logs
// or error context.
func redact(endpoint string) string {
	if len(endpoint) > 0 && endpoint[0] == '/' {
		parts := 0
		for i := 1; i < len(endpoint); i++ {
			if endpoint[i] == '/' {
				parts++
				if parts == 2 {
					return endpoint[:i]
				}
			}
		}
	}
	return endpoint
}
