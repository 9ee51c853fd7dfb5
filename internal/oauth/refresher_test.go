package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/retry"
)

func TestRefreshParsesTokenResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "the-refresh-token", r.Form.Get("refresh_token"))
		assert.Equal(t, "client-1", r.Form.Get("client_id"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "rotated-refresh",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	r := NewRefresher(credentials.ProviderGoogle, App{ClientID: "client-1", ClientSecret: "s", TokenURL: server.URL})

	cred, err := r.Refresh(context.Background(), &credentials.Credential{RefreshToken: "the-refresh-token"})
	require.NoError(t, err)
	assert.Equal(t, "new-access", cred.AccessToken)
	assert.Equal(t, "rotated-refresh", cred.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cred.ExpiresAt, 5*time.Second)
}

func TestRefreshInvalidGrantIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	r := NewRefresher(credentials.ProviderHubspot, App{ClientID: "c", ClientSecret: "s", TokenURL: server.URL})

	_, err := r.Refresh(context.Background(), &credentials.Credential{RefreshToken: "revoked"})
	require.Error(t, err)
	assert.False(t, retry.IsRetryableError(err), "invalid_grant must not be retried")
}

func TestRefreshServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewRefresher(credentials.ProviderZoho, App{ClientID: "c", ClientSecret: "s", TokenURL: server.URL})

	_, err := r.Refresh(context.Background(), &credentials.Credential{RefreshToken: "rt"})
	require.Error(t, err)
	assert.True(t, retry.IsRetryableError(err))
}

func TestExchangeCapturesAccountEmail(t *testing.T) {
	idToken := makeUnsignedIDToken(t, map[string]interface{}{"email": "owner@example.com", "sub": "123"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access",
			"refresh_token": "refresh",
			"expires_in":    3599,
			"id_token":      idToken,
		})
	}))
	defer server.Close()

	r := NewRefresher(credentials.ProviderGoogle, App{ClientID: "c", ClientSecret: "s", TokenURL: server.URL})

	cred, err := r.Exchange(context.Background(), "auth-code", "https://app.example.com/callback")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", cred.AccountEmail)
	assert.Equal(t, credentials.ProviderGoogle, cred.Provider)
}

func TestDefaultTokenURLs(t *testing.T) {
	assert.Equal(t, GoogleTokenURL, NewRefresher(credentials.ProviderGoogle, App{}).app.TokenURL)
	assert.Equal(t, HubspotTokenURL, NewRefresher(credentials.ProviderHubspot, App{}).app.TokenURL)
	assert.Equal(t, ZohoTokenURL, NewRefresher(credentials.ProviderZoho, App{}).app.TokenURL)
}

func TestEmailFromIDToken(t *testing.T) {
	token := makeUnsignedIDToken(t, map[string]interface{}{"email": "a@b.com"})

	email, err := EmailFromIDToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", email)

	_, err = EmailFromIDToken("not.a.jwt")
	assert.Error(t, err)

	noEmail := makeUnsignedIDToken(t, map[string]interface{}{"sub": "123"})
	_, err = EmailFromIDToken(noEmail)
	assert.Error(t, err)
}

// makeUnsignedIDToken builds a JWT with alg=none-style empty signature,
// enough for ParseUnverified.
func makeUnsignedIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("sig"))
}
