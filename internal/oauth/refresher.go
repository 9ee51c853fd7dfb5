package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/retry"
)

// Default token endpoints per provider. Overridable through config for
// regional domains (Zoho) and tests.
const (
	GoogleTokenURL  = "https://oauth2.googleapis.com/token"
	HubspotTokenURL = "https://api.hubapi.com/oauth/v1/token"
	ZohoTokenURL    = "https://accounts.zoho.com/oauth/v2/token"
)

// tokenResponse is the standard OAuth2 token endpoint response shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	APIDomain    string `json:"api_domain"` // Zoho returns the regional API base
}

// App holds one provider's app-level client credentials.
type App struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Refresher implements credentials.Refresher against a standard OAuth2
// token endpoint.
type Refresher struct {
	provider credentials.Provider
	app      App
	client   *http.Client
}

// NewRefresher creates a refresher for an OAuth provider. An empty
// app.TokenURL falls back to the provider's default endpoint.
func NewRefresher(provider credentials.Provider, app App) *Refresher {
	if app.TokenURL == "" {
		switch provider {
		case credentials.ProviderGoogle:
			app.TokenURL = GoogleTokenURL
		case credentials.ProviderHubspot:
			app.TokenURL = HubspotTokenURL
		case credentials.ProviderZoho:
			app.TokenURL = ZohoTokenURL
		}
	}
	return &Refresher{
		provider: provider,
		app:      app,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Refresh exchanges the stored refresh token for a new access token.
func (r *Refresher) Refresh(ctx context.Context, cred *credentials.Credential) (*credentials.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", r.app.ClientID)
	form.Set("client_secret", r.app.ClientSecret)

	resp, err := r.postForm(ctx, form)
	if err != nil {
		return nil, err
	}

	refreshed := &credentials.Credential{
		BusinessID:   cred.BusinessID,
		Provider:     cred.Provider,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if resp.APIDomain != "" {
		refreshed.Endpoint = resp.APIDomain
	}

	log.Debug().
		Str("provider", string(r.provider)).
		Time("expires_at", refreshed.ExpiresAt).
		Msg("Token refresh succeeded")

	return refreshed, nil
}

// Exchange trades an authorization code for the initial credential during
// tenant onboarding. For Google the id_token is decoded to capture the
// connected account email.
func (r *Refresher) Exchange(ctx context.Context, code, redirectURI string) (*credentials.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", r.app.ClientID)
	form.Set("client_secret", r.app.ClientSecret)

	resp, err := r.postForm(ctx, form)
	if err != nil {
		return nil, err
	}

	cred := &credentials.Credential{
		Provider:     r.provider,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if resp.APIDomain != "" {
		cred.Endpoint = resp.APIDomain
	}
	if resp.IDToken != "" {
		if email, err := EmailFromIDToken(resp.IDToken); err == nil {
			cred.AccountEmail = email
		} else {
			log.Warn().Err(err).Str("provider", string(r.provider)).Msg("Could not decode id_token")
		}
	}

	return cred, nil
}

func (r *Refresher) postForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.app.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := r.client.Do(req)
	if err != nil {
		// Network-level failures against the token endpoint are transient.
		return nil, retry.Transient(fmt.Errorf("token endpoint request failed: %w", err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("failed to read token response: %w", err))
	}

	if httpResp.StatusCode >= 500 {
		return nil, retry.Transient(fmt.Errorf("token endpoint returned %d: %s", httpResp.StatusCode, truncate(string(body), 200)))
	}
	if httpResp.StatusCode != http.StatusOK {
		// 4xx (invalid_grant, revoked token) is not retryable.
		return nil, fmt.Errorf("token endpoint returned %d: %s", httpResp.StatusCode, truncate(string(body), 200))
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token")
	}

	return &resp, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
