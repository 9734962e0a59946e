package greenapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"channelsync/internal/errors"
	"channelsync/internal/models"
	"channelsync/pkg/provider/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *GreenAPIClient {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewClient(models.WhatsAppProviderConfig{
		APIBaseURL:   serverURL,
		PartnerToken: "partner-token",
		WebhookURL:   "https://hooks.example.com/webhook/inbound",
	}, nil, logger)
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/partner/exchangeCode", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "partner-token", payload["partnerToken"])
		assert.Equal(t, "code-1", payload["code"])

		_, _ = w.Write([]byte(`{"idInstance":"1101000001","apiTokenInstance":"instance-token"}`))
	}))
	defer server.Close()

	token, err := newTestClient(server.URL).ExchangeCode(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "1101000001", token.InstanceID)
	assert.Equal(t, "instance-token", token.AccessToken)
}

func TestExchangeCodeIncompleteInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"idInstance":"1101000001"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ExchangeCode(context.Background(), "code-1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthentication, errors.GetCode(err))
}

func TestDiscoverResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/waInstance1101000001/getStateInstance/instance-token", r.URL.Path)
		_, _ = w.Write([]byte(`{"stateInstance":"authorized"}`))
	}))
	defer server.Close()

	resources, err := newTestClient(server.URL).DiscoverResources(context.Background(), &types.Token{
		AccessToken: "instance-token",
		InstanceID:  "1101000001",
	})
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "1101000001", resources[0].ID)
}

func TestDiscoverResourcesMissingInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stateInstance":"notExist"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	_, err := c.DiscoverResources(context.Background(), &types.Token{AccessToken: "t", InstanceID: "1101000001"})
	require.Error(t, err)
	assert.True(t, errors.IsNoResources(err))

	// A token with no instance id short-circuits without a network call.
	_, err = c.DiscoverResources(context.Background(), &types.Token{AccessToken: "t"})
	require.Error(t, err)
	assert.True(t, errors.IsNoResources(err))
}

func TestRegisterResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/waInstance1101000001/registerAccount/instance-token", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).RegisterResource(context.Background(), "1101000001", &types.Token{AccessToken: "instance-token"})
	assert.NoError(t, err)
}

func TestSubscribeWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://hooks.example.com/webhook/inbound", payload["webhookUrl"])
		assert.Equal(t, "yes", payload["incomingWebhook"])
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).SubscribeWebhook(context.Background(), "1101000001", &types.Token{AccessToken: "instance-token"})
	assert.NoError(t, err)
}

func TestServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestClient(server.URL).RegisterResource(context.Background(), "1101000001", &types.Token{AccessToken: "t"})
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestRedactStripsTokenSegment(t *testing.T) {
	assert.Equal(t, "/waInstance1101000001/registerAccount",
		redact("/waInstance1101000001/registerAccount/secret-token"))
	assert.Equal(t, "/partner/exchangeCode", redact("/partner/exchangeCode"))
	assert.Equal(t, "", redact(""))
}
