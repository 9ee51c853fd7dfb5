package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/providers"
	"github.com/countplus7/wbot-backend-sub001/internal/retry"
	"github.com/countplus7/wbot-backend-sub001/internal/slots"
)

const defaultBaseURL = "https://api.hubapi.com"

// HubspotHandler executes CRM actions against the HubSpot contacts API.
type HubspotHandler struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
}

// New creates a HubSpot handler.
func New() *HubspotHandler {
	return &HubspotHandler{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Second), 5),
		baseURL:     defaultBaseURL,
	}
}

// Provider implements providers.Handler.
func (h *HubspotHandler) Provider() credentials.Provider {
	return credentials.ProviderHubspot
}

// Execute implements providers.Handler.
func (h *HubspotHandler) Execute(ctx context.Context, cred *credentials.Credential, action providers.Action, values slots.Values) (*providers.Result, error) {
	switch action {
	case providers.ActionLeadCreate:
		return h.createLead(ctx, cred, values)
	case providers.ActionContactSearch:
		return h.searchContacts(ctx, cred, values)
	default:
		return nil, fmt.Errorf("hubspot handler does not support action %s", action)
	}
}

func (h *HubspotHandler) createLead(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	name := values["name"]
	first, last := splitName(name)

	properties := map[string]string{
		"firstname":      first,
		"lastname":       last,
		"lifecyclestage": "lead",
	}
	if email := values["email"]; email != "" {
		properties["email"] = email
	}
	if phone := values["phone"]; phone != "" {
		properties["phone"] = phone
	}
	if company := values["company"]; company != "" {
		properties["company"] = company
	}

	payload := map[string]interface{}{"properties": properties}

	var resp struct {
		ID string `json:"id"`
	}
	if err := h.doJSON(ctx, cred, http.MethodPost, "/crm/v3/objects/contacts", payload, &resp); err != nil {
		return nil, err
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Created lead %s in HubSpot.", name),
		Data:    map[string]string{"contact_id": resp.ID},
	}, nil
}

func (h *HubspotHandler) searchContacts(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	payload := map[string]interface{}{
		"query": values["query"],
		"limit": 5,
		"properties": []string{
			"firstname", "lastname", "email", "phone", "company",
		},
	}

	var resp struct {
		Total   int `json:"total"`
		Results []struct {
			ID         string            `json:"id"`
			Properties map[string]string `json:"properties"`
		} `json:"results"`
	}
	if err := h.doJSON(ctx, cred, http.MethodPost, "/crm/v3/objects/contacts/search", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Total == 0 {
		return &providers.Result{Summary: fmt.Sprintf("No contacts found matching %q.", values["query"])}, nil
	}

	var lines []string
	for _, contact := range resp.Results {
		props := contact.Properties
		line := strings.TrimSpace(props["firstname"] + " " + props["lastname"])
		if props["email"] != "" {
			line += " <" + props["email"] + ">"
		}
		if props["company"] != "" {
			line += " (" + props["company"] + ")"
		}
		lines = append(lines, line)
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Found %d contact(s):\n%s", resp.Total, strings.Join(lines, "\n")),
		Data:    map[string]string{"total": strconv.Itoa(resp.Total)},
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

func (h *HubspotHandler) doJSON(ctx context.Context, cred *credentials.Credential, method, path string, payload, out interface{}) error {
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

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("hubspot request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Transient(fmt.Errorf("failed to read hubspot response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ClassifyStatus("hubspot", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode hubspot response: %w", err)
		}
	}

	return nil
}
