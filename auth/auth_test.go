package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, expiresIn int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"token%d","token_type":"bearer","expires_in":%d}`, n, expiresIn)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestGetTokenAndSetAuthHeader(t *testing.T) {
	server, calls := tokenServer(t, 3600)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL})

	token, err := client.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token1", token)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, client.SetAuthHeader(req))
	assert.Equal(t, "Bearer token1", req.Header.Get("Authorization"))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestForceRefresh(t *testing.T) {
	server, calls := tokenServer(t, 3600)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL})

	_, err := client.GetToken(context.Background())
	require.NoError(t, err)
	token, err := client.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token2", token)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestGetToken_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL})
	_, err := client.GetToken(context.Background())
	assert.Error(t, err)
}

func TestConf_Validate(t *testing.T) {
	assert.NoError(t, Conf{}.Validate())
	assert.Error(t, Conf{ClientID: "id"}.Validate())
	assert.NoError(t, Conf{ClientID: "id", ClientSecret: "s", AuthURL: "http://x"}.Validate())
}
