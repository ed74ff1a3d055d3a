package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, calls *int32, expiresIn int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/realms/campaigns/protocol/openid-connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "campaign-client", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "tok-1", ExpiresIn: expiresIn, TokenType: "Bearer"})
	}))
}

func TestKeycloakClient_Token_Cached(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, 300)
	defer server.Close()

	k := NewKeycloakClient(server.URL+"/", "campaigns", "campaign-client", "secret")

	tok, err := k.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = k.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestKeycloakClient_Token_RefreshesNearExpiry(t *testing.T) {
	var calls int32
	server := newTokenServer(t, &calls, 60)
	defer server.Close()

	now := time.Now()
	k := NewKeycloakClient(server.URL, "campaigns", "campaign-client", "secret")
	k.now = func() time.Time { return now }

	_, err := k.Token(context.Background())
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	_, err = k.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestKeycloakClient_Token_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	k := NewKeycloakClient(server.URL, "campaigns", "campaign-client", "bad")
	_, err := k.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSPORT_FAILED")
}
