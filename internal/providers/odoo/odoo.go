package odoo

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

// OdooHandler executes ERP actions against an Odoo instance over its
// JSON-RPC endpoint. Odoo uses long-lived API keys, so credentials for
// this provider never go through the refresh path.
type OdooHandler struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// New creates an Odoo handler.
func New() *OdooHandler {
	return &OdooHandler{
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Second), 5),
	}
}

// Provider implements providers.Handler.
func (h *OdooHandler) Provider() credentials.Provider {
	return credentials.ProviderOdoo
}

// Execute implements providers.Handler.
func (h *OdooHandler) Execute(ctx context.Context, cred *credentials.Credential, action providers.Action, values slots.Values) (*providers.Result, error) {
	uid, err := h.authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}

	switch action {
	case providers.ActionOrderCreate:
		return h.createOrder(ctx, cred, uid, values)
	case providers.ActionInvoiceStatus:
		return h.invoiceStatus(ctx, cred, uid, values)
	case providers.ActionTicketCreate:
		return h.createTicket(ctx, cred, uid, values)
	default:
		return nil, fmt.Errorf("odoo handler does not support action %s", action)
	}
}

// authenticate resolves the session uid for the stored API key. Odoo
// wants the uid on every execute_kw call.
func (h *OdooHandler) authenticate(ctx context.Context, cred *credentials.Credential) (int, error) {
	var uid int
	err := h.rpc(ctx, cred, "common", "authenticate",
		[]interface{}{cred.AccountID, cred.AccountEmail, cred.AccessToken, map[string]interface{}{}}, &uid)
	if err != nil {
		return 0, err
	}
	if uid == 0 {
		return 0, providers.ErrAuth
	}
	return uid, nil
}

func (h *OdooHandler) createOrder(ctx context.Context, cred *credentials.Credential, uid int, values slots.Values) (*providers.Result, error) {
	product := values["product"]
	quantity, err := strconv.Atoi(values["quantity"])
	if err != nil || quantity < 1 {
		return nil, providers.Validation("quantity %q is not a positive number", values["quantity"])
	}

	var products []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	err = h.executeKw(ctx, cred, uid, "product.product", "search_read",
		[]interface{}{
			[]interface{}{[]interface{}{"name", "ilike", product}},
			[]string{"id", "name"},
		},
		map[string]interface{}{"limit": 1}, &products)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, providers.Validation("no product matching %q", product)
	}

	var orderID int
	err = h.executeKw(ctx, cred, uid, "sale.order", "create",
		[]interface{}{map[string]interface{}{
			"partner_id": uid,
			"order_line": []interface{}{
				[]interface{}{0, 0, map[string]interface{}{
					"product_id":      products[0].ID,
					"product_uom_qty": quantity,
				}},
			},
		}}, nil, &orderID)
	if err != nil {
		return nil, err
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Created order for %d x %s (order #%d).", quantity, products[0].Name, orderID),
		Data:    map[string]string{"order_id": strconv.Itoa(orderID)},
	}, nil
}

func (h *OdooHandler) invoiceStatus(ctx context.Context, cred *credentials.Credential, uid int, values slots.Values) (*providers.Result, error) {
	invoiceID := values["invoice_id"]

	var invoices []struct {
		Name         string  `json:"name"`
		PaymentState string  `json:"payment_state"`
		AmountTotal  float64 `json:"amount_total"`
		AmountDue    float64 `json:"amount_residual"`
	}
	err := h.executeKw(ctx, cred, uid, "account.move", "search_read",
		[]interface{}{
			[]interface{}{
				[]interface{}{"name", "ilike", invoiceID},
				[]interface{}{"move_type", "=", "out_invoice"},
			},
			[]string{"name", "payment_state", "amount_total", "amount_residual"},
		},
		map[string]interface{}{"limit": 1}, &invoices)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, providers.Validation("no invoice matching %q", invoiceID)
	}

	inv := invoices[0]
	status := strings.ReplaceAll(inv.PaymentState, "_", " ")
	summary := fmt.Sprintf("Invoice %s is %s. Total %.2f, outstanding %.2f.",
		inv.Name, status, inv.AmountTotal, inv.AmountDue)

	return &providers.Result{
		Summary: summary,
		Data: map[string]string{
			"invoice":       inv.Name,
			"payment_state": inv.PaymentState,
		},
	}, nil
}

func (h *OdooHandler) createTicket(ctx context.Context, cred *credentials.Credential, uid int, values slots.Values) (*providers.Result, error) {
	subject := values["subject"]
	if subject == "" {
		subject = "Support request"
	}

	var ticketID int
	err := h.executeKw(ctx, cred, uid, "helpdesk.ticket", "create",
		[]interface{}{map[string]interface{}{
			"name":        subject,
			"description": values["description"],
		}}, nil, &ticketID)
	if err != nil {
		return nil, err
	}

	return &providers.Result{
		Summary: fmt.Sprintf("Created support ticket #%d: %s", ticketID, subject),
		Data:    map[string]string{"ticket_id": strconv.Itoa(ticketID)},
	}, nil
}

func (h *OdooHandler) executeKw(ctx context.Context, cred *credentials.Credential, uid int, model, method string, args []interface{}, kwargs map[string]interface{}, out interface{}) error {
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	params := []interface{}{cred.AccountID, uid, cred.AccessToken, model, method, args, kwargs}
	return h.rpc(ctx, cred, "object", "execute_kw", params, out)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Message string `json:"message"`
	} `json:"data"`
}

func (h *OdooHandler) rpc(ctx context.Context, cred *credentials.Credential, service, method string, args []interface{}, out interface{}) error {
	if err := h.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "call",
		"params": map[string]interface{}{
			"service": service,
			"method":  method,
			"args":    args,
		},
		"id": time.Now().UnixNano(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := strings.TrimSuffix(cred.Endpoint, "/") + "/jsonrpc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("odoo request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Transient(fmt.Errorf("failed to read odoo response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ClassifyStatus("odoo", resp.StatusCode, string(raw))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode odoo response: %w", err)
	}
	if envelope.Error != nil {
		msg := envelope.Error.Data.Message
		if msg == "" {
			msg = envelope.Error.Message
		}
		if strings.Contains(strings.ToLower(msg), "access denied") {
			return fmt.Errorf("odoo: %s: %w", msg, providers.ErrAuth)
		}
		return providers.Validation("odoo: %s", msg)
	}

	if out != nil && len(envelope.Result) > 0 && string(envelope.Result) != "null" {
		// authenticate returns false for bad keys; map it to zero.
		if string(envelope.Result) == "false" {
			return nil
		}
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode odoo result: %w", err)
		}
	}

	return nil
}
