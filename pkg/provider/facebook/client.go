package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"channelsync/internal/errors"
	"channelsync/internal/models"
	"channelsync/pkg/provider/types"

	"github.com/sirupsen/logrus"
)

const providerName = "facebook"

// FacebookClient drives the Graph API for Facebook Page channels.
type FacebookClient struct {
	cfg    models.GraphProviderConfig
	client *http.Client
	logger *logrus.Logger
}

// NewClient creates a Facebook Graph client.
func NewClient(cfg models.GraphProviderConfig, httpClient *http.Client, logger *logrus.Logger) *FacebookClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &FacebookClient{
		cfg:    cfg,
		client: httpClient,
		logger: logger,
	}
}

func (c *FacebookClient) Type() models.ChannelType {
	return models.ChannelTypeFacebook
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeCode exchanges an OAuth authorization code for a user access token.
func (c *FacebookClient) ExchangeCode(ctx context.Context, code string) (*types.Token, error) {
	params := url.Values{}
	params.Set("client_id", c.cfg.AppID)
	params.Set("client_secret", c.cfg.AppSecret)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("code", code)

	endpoint := "/oauth/access_token"
	var resp tokenResponse
	if err := c.getJSON(ctx, endpoint+"?"+params.Encode(), endpoint, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, errors.New(errors.ErrCodeAuthentication, "token exchange returned an empty access token").
			WithContext("provider", providerName)
	}

	token := &types.Token{AccessToken: resp.AccessToken}
	if resp.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return token, nil
}

type accountsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// DiscoverResources lists the Pages the user administers.
func (c *FacebookClient) DiscoverResources(ctx context.Context, token *types.Token) ([]types.Resource, error) {
	params := url.Values{}
	params.Set("access_token", token.AccessToken)
	params.Set("fields", "id,name,access_token")

	endpoint := "/me/accounts"
	var resp accountsResponse
	if err := c.getJSON(ctx, endpoint+"?"+params.Encode(), endpoint, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.NewNoResourcesError(providerName)
	}

	resources := make([]types.Resource, 0, len(resp.Data))
	for _, page := range resp.Data {
		resources = append(resources, types.Resource{
			ID:          page.ID,
			Name:        page.Name,
			AccessToken: page.AccessToken,
		})
	}
	return resources, nil
}

// RegisterResource is a no-op for Facebook Pages; a Page needs no
// provider-side activation beyond the app subscription.
func (c *FacebookClient) RegisterResource(ctx context.Context, resourceID string, token *types.Token) error {
	return nil
}

type subscribeResponse struct {
	Success bool `json:"success"`
}

// SubscribeWebhook subscribes the app to the Page's webhook events.
func (c *FacebookClient) SubscribeWebhook(ctx context.Context, resourceID string, token *types.Token) error {
	fields := c.cfg.WebhookFields
	if fields == "" {
		fields = "messages,messaging_postbacks"
	}

	params := url.Values{}
	params.Set("subscribed_fields", fields)
	params.Set("access_token", token.AccessToken)

	endpoint := fmt.Sprintf("/%s/subscribed_apps", resourceID)
	var resp subscribeResponse
	if err := c.postForm(ctx, endpoint, params, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(errors.ErrCodeTransient, "webhook subscription was not acknowledged").
			WithContext("provider", providerName).
			WithContext("resource_id", resourceID)
	}
	return nil
}

func (c *FacebookClient) getJSON(ctx context.Context, path, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, endpoint, out)
}

func (c *FacebookClient) postForm(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, endpoint, out)
}

func (c *FacebookClient) do(req *http.Request, endpoint string, out interface{}) error {
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
		}).Warn("Graph API call failed")
		return errors.NewProviderError(providerName, endpoint, resp.StatusCode,
			fmt.Errorf("request failed with status %d: %s", resp.StatusCode, truncate(string(body), 256)))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
