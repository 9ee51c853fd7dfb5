package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/providers"
	"github.com/countplus7/wbot-backend-sub001/internal/retry"
	"github.com/countplus7/wbot-backend-sub001/internal/slots"
)

const defaultAPIDomain = "https://www.zohoapis.com"

// ZohoHandler executes CRM actions against the Zoho CRM v2 API. It is the
// alternate CRM behind the same handler contract as HubSpot.
type ZohoHandler struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// New creates a Zoho handler.
func New() *ZohoHandler {
	return &ZohoHandler{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Second), 5),
	}
}

// Provider implements providers.Handler.
func (h *ZohoHandler) Provider() credentials.Provider {
	return credentials.ProviderZoho
}

// Execute implements providers.Handler.
func (h *ZohoHandler) Execute(ctx context.Context, cred *credentials.Credential, action providers.Action, values slots.Values) (*providers.Result, error) {
	switch action {
	case providers.ActionLeadCreate:
		return h.createLead(ctx, cred, values)
	case providers.ActionContactSearch:
		return h.searchContacts(ctx, cred, values)
	default:
		return nil, fmt.Errorf("zoho handler does not support action %s", action)
	}
}

// apiDomain prefers the regional domain captured during the OAuth
// exchange; Zoho tokens only work against their issuing region.
func apiDomain(cred *credentials.Credential) string {
	if cred.Endpoint != "" {
		return strings.TrimSuffix(cred.Endpoint, "/")
	}
	return defaultAPIDomain
}

func (h *ZohoHandler) createLead(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	name := values["name"]
	first, last := splitName(name)
	if last == "" {
		// Zoho requires Last_Name; single-word names go there.
		first, last = "", first
	}

	record := map[string]interface{}{
		"First_Name": first,
		"Last_Name":  last,
	}
	if email := values["email"]; email != "" {
		record["Email"] = email
	}
	if phone := values["phone"]; phone != "" {
		record["Phone"] = phone
	}
	if company := values["company"]; company != "" {
		record["Company"] = company
	}

	payload := map[string]interface{}{"data": []interface{}{record}}

	var resp struct {
		Data []struct {
			Code    string `json:"code"`
			Details struct {
				ID string `json:"id"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := h.doJSON(ctx, cred, http.MethodPost, apiDomain(cred)+"/crm/v2/Leads", payload, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || resp.Data[0].Code != "SUCCESS" {
		return nil, providers.Validation("zoho did not accept the lead record")
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Created lead %s in Zoho CRM.", name),
		Data:    map[string]string{"lead_id": resp.Data[0].Details.ID},
	}, nil
}

func (h *ZohoHandler) searchContacts(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	searchURL := fmt.Sprintf("%s/crm/v2/Contacts/search?word=%s", apiDomain(cred), url.QueryEscape(values["query"]))

	var resp struct {
		Data []struct {
			FullName string `json:"Full_Name"`
			Email    string `json:"Email"`
			Phone    string `json:"Phone"`
		} `json:"data"`
	}
	if err := h.doJSON(ctx, cred, http.MethodGet, searchURL, nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return &providers.Result{Summary: fmt.Sprintf("No contacts found matching %q.", values["query"])}, nil
	}

	var lines []string
	for _, contact := range resp.Data {
		line := contact.FullName
		if contact.Email != "" {
			line += " <" + contact.Email + ">"
		}
		lines = append(lines, line)
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Found %d contact(s):\n%s", len(resp.Data), strings.Join(lines, "\n")),
		Data:    map[string]string{"total": strconv.Itoa(len(resp.Data))},
	}, nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func (h *ZohoHandler) doJSON(ctx context.Context, cred *credentials.Credential, method, reqURL string, payload, out interface{}) error {
	if err := h.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+cred.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("zoho request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Transient(fmt.Errorf("failed to read zoho response: %w", err))
	}

	// Zoho search returns 204 when nothing matches.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ClassifyStatus("zoho", resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode zoho response: %w", err)
		}
	}

	return nil
}
