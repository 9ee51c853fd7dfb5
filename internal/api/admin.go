package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/faq"
	"github.com/countplus7/wbot-backend-sub001/internal/tenant"
)

type createBusinessRequest struct {
	Name          string `json:"name"`
	PhoneNumberID string `json:"phone_number_id"`
	Tone          string `json:"tone"`
}

func (s *Server) createBusiness(c echo.Context) error {
	var req createBusinessRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" || req.PhoneNumberID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name and phone_number_id are required"})
	}

	business := &tenant.Business{
		Name:          req.Name,
		PhoneNumberID: req.PhoneNumberID,
		Tone:          req.Tone,
		Status:        tenant.StatusActive,
	}
	if err := s.tenants.Create(c.Request().Context(), business); err != nil {
		log.Error().Err(err).Msg("failed to create business")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create business"})
	}

	return c.JSON(http.StatusCreated, business)
}

func (s *Server) listBusinesses(c echo.Context) error {
	businesses, err := s.tenants.List(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list businesses")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list businesses"})
	}
	return c.JSON(http.StatusOK, businesses)
}

func (s *Server) getBusiness(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid business id"})
	}

	business, err := s.tenants.GetByID(c.Request().Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("failed to load business")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load business"})
	}
	if business == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "business not found"})
	}
	return c.JSON(http.StatusOK, business)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) setBusinessStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid business id"})
	}

	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Status != tenant.StatusActive && req.Status != tenant.StatusDisabled {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "status must be active or disabled"})
	}

	if err := s.tenants.SetStatus(c.Request().Context(), id, req.Status); err != nil {
		log.Error().Err(err).Msg("failed to update business status")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update status"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

type upsertCredentialRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
	AccountEmail string     `json:"account_email"`
	Endpoint     string     `json:"endpoint"`
	AccountID    string     `json:"account_id"`
}

// credentialView is what reads return; tokens never leave the service.
type credentialView struct {
	Provider     string     `json:"provider"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AccountEmail string     `json:"account_email,omitempty"`
	Endpoint     string     `json:"endpoint,omitempty"`
	AccountID    string     `json:"account_id,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (s *Server) upsertCredential(c echo.Context) error {
	businessID, provider, errResp := s.credentialTarget(c)
	if errResp != nil {
		return errResp
	}

	var req upsertCredentialRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AccessToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "access_token is required"})
	}
	if provider.RequiresOAuth() && req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "refresh_token is required for oauth providers"})
	}

	cred := &credentials.Credential{
		BusinessID:   businessID,
		Provider:     provider,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		AccountEmail: req.AccountEmail,
		Endpoint:     req.Endpoint,
		AccountID:    req.AccountID,
	}
	if req.ExpiresAt != nil {
		cred.ExpiresAt = *req.ExpiresAt
	}

	if err := s.creds.Upsert(c.Request().Context(), cred); err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("failed to store credential")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store credential"})
	}

	return c.JSON(http.StatusOK, viewOf(cred))
}

func (s *Server) getCredential(c echo.Context) error {
	businessID, provider, errResp := s.credentialTarget(c)
	if errResp != nil {
		return errResp
	}

	cred, err := s.creds.Get(c.Request().Context(), businessID, provider)
	if err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("failed to load credential")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load credential"})
	}
	if cred == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "integration not configured"})
	}
	return c.JSON(http.StatusOK, viewOf(cred))
}

func (s *Server) deleteCredential(c echo.Context) error {
	businessID, provider, errResp := s.credentialTarget(c)
	if errResp != nil {
		return errResp
	}

	if err := s.creds.Delete(c.Request().Context(), businessID, provider); err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("failed to delete credential")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete credential"})
	}
	return c.NoContent(http.StatusNoContent)
}

// credentialTarget parses the business id and provider path params.
func (s *Server) credentialTarget(c echo.Context) (uuid.UUID, credentials.Provider, error) {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, "", c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid business id"})
	}
	provider := credentials.Provider(c.Param("provider"))
	if !provider.Valid() {
		return uuid.Nil, "", c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown provider"})
	}
	return businessID, provider, nil
}

func viewOf(cred *credentials.Credential) credentialView {
	view := credentialView{
		Provider:     string(cred.Provider),
		AccountEmail: cred.AccountEmail,
		Endpoint:     cred.Endpoint,
		AccountID:    cred.AccountID,
		UpdatedAt:    cred.UpdatedAt,
	}
	if !cred.ExpiresAt.IsZero() {
		view.ExpiresAt = &cred.ExpiresAt
	}
	return view
}

type faqRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) createFAQ(c echo.Context) error {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid business id"})
	}

	var req faqRequest
	if err := c.Bind(&req); err != nil || req.Question == "" || req.Answer == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "question and answer are required"})
	}

	entry := &faq.Entry{BusinessID: businessID, Question: req.Question, Answer: req.Answer}
	if err := s.faqs.Create(c.Request().Context(), entry); err != nil {
		log.Error().Err(err).Msg("failed to create faq entry")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create faq entry"})
	}
	return c.JSON(http.StatusCreated, entry)
}

func (s *Server) listFAQs(c echo.Context) error {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid business id"})
	}

	entries, err := s.faqs.List(c.Request().Context(), businessID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list faq entries")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list faq entries"})
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) updateFAQ(c echo.Context) error {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid business id"})
	}
	faqID, err := uuid.Parse(c.Param("faqID"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid faq id"})
	}

	var req faqRequest
	if err := c.Bind(&req); err != nil || req.Question == "" || req.Answer == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "question and answer are required"})
	}

	entry := &faq.Entry{ID: faqID, BusinessID: businessID, Question: req.Question, Answer: req.Answer}
	if err := s.faqs.Update(c.Request().Context(), entry); err != nil {
		log.Error().Err(err).Msg("failed to update faq entry")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update faq entry"})
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) deleteFAQ(c echo.Context) error {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid business id"})
	}
	faqID, err := uuid.Parse(c.Param("faqID"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid faq id"})
	}

	if err := s.faqs.Delete(c.Request().Context(), businessID, faqID); err != nil {
		log.Error().Err(err).Msg("failed to delete faq entry")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete faq entry"})
	}
	return c.NoContent(http.StatusNoContent)
}
