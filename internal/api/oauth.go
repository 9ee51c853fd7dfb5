package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
)

// Exchanger trades an authorization code for an initial credential during
// tenant onboarding.
type Exchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (*credentials.Credential, error)
}

// oauthCallback completes the provider consent flow: the provider
// redirects here with a code, we exchange it for tokens and store the
// credential for the business. The business id rides in the state param
// set when the consent URL was issued.
func (s *Server) oauthCallback(c echo.Context) error {
	businessID, provider, errResp := s.credentialTarget(c)
	if errResp != nil {
		return errResp
	}
	if !provider.RequiresOAuth() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "provider does not use oauth"})
	}

	if errParam := c.QueryParam("error"); errParam != "" {
		// The user declined consent; nothing to store.
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "authorization denied: " + errParam})
	}
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "code is required"})
	}

	exchanger, ok := s.exchangers[provider]
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "oauth app not configured for provider"})
	}

	// redirect_uri must match the one used in the consent request, which
	// is this endpoint itself.
	redirectURI := c.Scheme() + "://" + c.Request().Host + c.Request().URL.Path

	cred, err := exchanger.Exchange(c.Request().Context(), code, redirectURI)
	if err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("oauth code exchange failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "code exchange failed"})
	}

	cred.BusinessID = businessID
	if err := s.creds.Upsert(c.Request().Context(), cred); err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("failed to store credential")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store credential"})
	}

	log.Info().
		Str("business_id", businessID.String()).
		Str("provider", string(provider)).
		Str("account_email", cred.AccountEmail).
		Msg("integration connected")

	return c.JSON(http.StatusOK, viewOf(cred))
}
