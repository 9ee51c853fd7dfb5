package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/webhookutils"
)

// webhookPayload is the subset of the WhatsApp Business webhook body we
// consume. Everything else (statuses, reactions, media) is acknowledged
// and ignored.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// verifyWebhook answers the platform's subscription handshake.
func (s *Server) verifyWebhook(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token == s.webhookVerifyToken {
		return c.String(http.StatusOK, challenge)
	}

	log.Warn().Str("mode", mode).Msg("webhook verification rejected")
	return c.NoContent(http.StatusForbidden)
}

// receiveWebhook handles message deliveries. The platform retries on
// non-2xx, so anything we cannot act on is still acknowledged; only a bad
// signature is rejected.
func (s *Server) receiveWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	signature := c.Request().Header.Get("X-Hub-Signature-256")
	if !webhookutils.ValidateSignature(s.webhookAppSecret, body, signature) {
		log.Warn().Msg("webhook delivery with invalid signature")
		return c.NoContent(http.StatusUnauthorized)
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Err(err).Msg("unparseable webhook payload")
		return c.NoContent(http.StatusOK)
	}

	ctx := c.Request().Context()
	var replies []map[string]string

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			phoneNumberID := change.Value.Metadata.PhoneNumberID
			business, err := s.tenants.GetByPhoneNumberID(ctx, phoneNumberID)
			if err != nil {
				log.Error().Err(err).Str("phone_number_id", phoneNumberID).Msg("failed to resolve tenant")
				continue
			}
			if business == nil || !business.Active() {
				log.Debug().Str("phone_number_id", phoneNumberID).Msg("delivery for unknown or disabled tenant")
				continue
			}

			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}

				reply := s.pipeline.Handle(ctx, business, msg.From, msg.Text.Body)
				if reply == "" {
					continue
				}
				replies = append(replies, map[string]string{
					"to":   msg.From,
					"text": reply,
				})
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "processed",
		"replies": replies,
	})
}
