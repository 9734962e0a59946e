package facebook

import (
	"context"
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

func newTestClient(serverURL string) *FacebookClient {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewClient(models.GraphProviderConfig{
		APIBaseURL:  serverURL,
		AppID:       "app-1",
		AppSecret:   "secret-1",
		RedirectURI: "https://app.example.com/callback",
	}, nil, logger)
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/access_token", r.URL.Path)
		assert.Equal(t, "app-1", r.URL.Query().Get("client_id"))
		assert.Equal(t, "secret-1", r.URL.Query().Get("client_secret"))
		assert.Equal(t, "code-xyz", r.URL.Query().Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"user-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	token, err := newTestClient(server.URL).ExchangeCode(context.Background(), "code-xyz")
	require.NoError(t, err)
	assert.Equal(t, "user-token", token.AccessToken)
	assert.False(t, token.ExpiresAt.IsZero())
}

func TestExchangeCodeEmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ExchangeCode(context.Background(), "code-xyz")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthentication, errors.GetCode(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestExchangeCodeRejectedNotRetryable(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid code"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ExchangeCode(context.Background(), "bad-code")
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
	assert.Equal(t, 1, calls)
}

func TestExchangeCodeServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ExchangeCode(context.Background(), "code-xyz")
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestDiscoverResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/accounts", r.URL.Path)
		assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
		_, _ = w.Write([]byte(`{"data":[
			{"id":"page-1","name":"First Page","access_token":"page-token-1"},
			{"id":"page-2","name":"Second Page","access_token":"page-token-2"}
		]}`))
	}))
	defer server.Close()

	resources, err := newTestClient(server.URL).DiscoverResources(context.Background(), &types.Token{AccessToken: "user-token"})
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, "page-1", resources[0].ID)
	assert.Equal(t, "First Page", resources[0].Name)
	assert.Equal(t, "page-token-1", resources[0].AccessToken)
}

func TestDiscoverResourcesEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).DiscoverResources(context.Background(), &types.Token{AccessToken: "user-token"})
	require.Error(t, err)
	assert.True(t, errors.IsNoResources(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestSubscribeWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/page-1/subscribed_apps", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "messages,messaging_postbacks", r.PostForm.Get("subscribed_fields"))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).SubscribeWebhook(context.Background(), "page-1", &types.Token{AccessToken: "user-token"})
	assert.NoError(t, err)
}

func TestSubscribeWebhookNotAcknowledged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).SubscribeWebhook(context.Background(), "page-1", &types.Token{AccessToken: "user-token"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransient, errors.GetCode(err))
}

func TestNetworkFailureIsRetryable(t *testing.T) {
	// Point at a closed server.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newTestClient(server.URL).ExchangeCode(context.Background(), "code-xyz")
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestRegisterResourceIsNoOp(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	assert.NoError(t, c.RegisterResource(context.Background(), "page-1", &types.Token{}))
}
