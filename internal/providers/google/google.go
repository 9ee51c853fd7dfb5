package google

import (
	"bytes"
	"context"
	"encoding/base64"
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

const (
	gmailBaseURL    = "https://gmail.googleapis.com/gmail/v1"
	calendarBaseURL = "https://www.googleapis.com/calendar/v3"
)

// GoogleHandler executes email and calendar actions against Gmail and
// Google Calendar.
type GoogleHandler struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter

	// Overridable for tests.
	gmailURL    string
	calendarURL string
}

// New creates a Google handler.
func New() *GoogleHandler {
	return &GoogleHandler{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Second), 5), // 5 requests per second
		gmailURL:    gmailBaseURL,
		calendarURL: calendarBaseURL,
	}
}

// Provider implements providers.Handler.
func (h *GoogleHandler) Provider() credentials.Provider {
	return credentials.ProviderGoogle
}

// Execute implements providers.Handler.
func (h *GoogleHandler) Execute(ctx context.Context, cred *credentials.Credential, action providers.Action, values slots.Values) (*providers.Result, error) {
	switch action {
	case providers.ActionEmailSend:
		return h.sendEmail(ctx, cred, values)
	case providers.ActionEmailRead:
		return h.readEmail(ctx, cred, values)
	case providers.ActionEventCreate:
		return h.createEvent(ctx, cred, values)
	case providers.ActionEventList:
		return h.listEvents(ctx, cred, values)
	default:
		return nil, fmt.Errorf("google handler does not support action %s", action)
	}
}

func (h *GoogleHandler) sendEmail(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	to := values["to"]
	subject := values["subject"]
	body := values["body"]

	var raw strings.Builder
	raw.WriteString("To: " + to + "\r\n")
	raw.WriteString("Subject: " + subject + "\r\n")
	raw.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	raw.WriteString("\r\n")
	raw.WriteString(body)

	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw.String())),
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := h.doJSON(ctx, cred, http.MethodPost, h.gmailURL+"/users/me/messages/send", payload, &resp); err != nil {
		return nil, err
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Email sent to %s with subject %q.", to, subject),
		Data:    map[string]string{"message_id": resp.ID, "to": to},
	}, nil
}

func (h *GoogleHandler) readEmail(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	listURL := h.gmailURL + "/users/me/messages?maxResults=5"
	if values["filter"] == "unread" {
		listURL += "&q=" + url.QueryEscape("is:unread")
	}

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		ResultSizeEstimate int `json:"resultSizeEstimate"`
	}
	if err := h.doJSON(ctx, cred, http.MethodGet, listURL, nil, &list); err != nil {
		return nil, err
	}

	if len(list.Messages) == 0 {
		return &providers.Result{Summary: "No matching emails found."}, nil
	}

	var summaries []string
	for _, msg := range list.Messages {
		var detail struct {
			Snippet string `json:"snippet"`
			Payload struct {
				Headers []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"headers"`
			} `json:"payload"`
		}
		detailURL := fmt.Sprintf("%s/users/me/messages/%s?format=metadata&metadataHeaders=From&metadataHeaders=Subject", h.gmailURL, msg.ID)
		if err := h.doJSON(ctx, cred, http.MethodGet, detailURL, nil, &detail); err != nil {
			return nil, err
		}

		from, subject := "", ""
		for _, header := range detail.Payload.Headers {
			switch header.Name {
			case "From":
				from = header.Value
			case "Subject":
				subject = header.Value
			}
		}
		summaries = append(summaries, fmt.Sprintf("From %s: %q — %s", from, subject, detail.Snippet))
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Latest emails:\n%s", strings.Join(summaries, "\n")),
		Data:    map[string]string{"count": strconv.Itoa(len(summaries))},
	}, nil
}

func (h *GoogleHandler) createEvent(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	start, end, err := eventWindow(values)
	if err != nil {
		return nil, providers.Validation("could not build event time: %v", err)
	}

	payload := map[string]interface{}{
		"summary": values["title"],
		"start":   map[string]string{"dateTime": start.Format(time.RFC3339)},
		"end":     map[string]string{"dateTime": end.Format(time.RFC3339)},
	}

	var resp struct {
		ID       string `json:"id"`
		HTMLLink string `json:"htmlLink"`
	}
	if err := h.doJSON(ctx, cred, http.MethodPost, h.calendarURL+"/calendars/primary/events", payload, &resp); err != nil {
		return nil, err
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Scheduled %q on %s at %s for %s minutes.", values["title"], values["date"], values["time"], values["duration"]),
		Data:    map[string]string{"event_id": resp.ID, "link": resp.HTMLLink},
	}, nil
}

func (h *GoogleHandler) listEvents(ctx context.Context, cred *credentials.Credential, values slots.Values) (*providers.Result, error) {
	day, err := time.Parse("2006-01-02", values["date"])
	if err != nil {
		return nil, providers.Validation("invalid date %q", values["date"])
	}

	query := url.Values{}
	query.Set("timeMin", day.Format(time.RFC3339))
	query.Set("timeMax", day.AddDate(0, 0, 1).Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")

	var resp struct {
		Items []struct {
			Summary string `json:"summary"`
			Start   struct {
				DateTime string `json:"dateTime"`
				Date     string `json:"date"`
			} `json:"start"`
		} `json:"items"`
	}
	if err := h.doJSON(ctx, cred, http.MethodGet, h.calendarURL+"/calendars/primary/events?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Items) == 0 {
		return &providers.Result{Summary: fmt.Sprintf("Nothing scheduled on %s.", values["date"])}, nil
	}

	var lines []string
	for _, item := range resp.Items {
		when := item.Start.DateTime
		if when == "" {
			when = item.Start.Date
		}
		lines = append(lines, fmt.Sprintf("%s — %s", when, item.Summary))
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Schedule for %s:\n%s", values["date"], strings.Join(lines, "\n")),
		Data:    map[string]string{"count": strconv.Itoa(len(lines))},
	}, nil
}

// eventWindow builds the start/end timestamps from date, time and
// duration slots.
func eventWindow(values slots.Values) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02 15:04", values["date"]+" "+values["time"])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	minutes, err := strconv.Atoi(values["duration"])
	if err != nil || minutes <= 0 {
		minutes = slots.DefaultMeetingDuration
	}

	return start, start.Add(time.Duration(minutes) * time.Minute), nil
}

func (h *GoogleHandler) doJSON(ctx context.Context, cred *credentials.Credential, method, reqURL string, payload, out interface{}) error {
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
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("google request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Transient(fmt.Errorf("failed to read google response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ClassifyStatus("google", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode google response: %w", err)
		}
	}

	return nil
}
