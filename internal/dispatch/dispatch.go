package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/intent"
	"github.com/countplus7/wbot-backend-sub001/internal/providers"
	"github.com/countplus7/wbot-backend-sub001/internal/retry"
	"github.com/countplus7/wbot-backend-sub001/internal/slots"
)

// route binds an intent to a provider action. Candidates are tried in
// order; the first provider the tenant has connected wins. CRM intents
// list both CRMs because tenants connect one or the other.
type route struct {
	action     providers.Action
	candidates []credentials.Provider
}

var routes = map[intent.Tag]route{
	intent.EmailSend:        {providers.ActionEmailSend, []credentials.Provider{credentials.ProviderGoogle}},
	intent.EmailRead:        {providers.ActionEmailRead, []credentials.Provider{credentials.ProviderGoogle}},
	intent.CalendarSchedule: {providers.ActionEventCreate, []credentials.Provider{credentials.ProviderGoogle}},
	intent.CalendarCheck:    {providers.ActionEventList, []credentials.Provider{credentials.ProviderGoogle}},
	intent.CRMCreateLead:    {providers.ActionLeadCreate, []credentials.Provider{credentials.ProviderHubspot, credentials.ProviderZoho}},
	intent.CRMSearchContact: {providers.ActionContactSearch, []credentials.Provider{credentials.ProviderHubspot, credentials.ProviderZoho}},
	intent.ERPOrder:         {providers.ActionOrderCreate, []credentials.Provider{credentials.ProviderOdoo}},
	intent.ERPInvoiceStatus: {providers.ActionInvoiceStatus, []credentials.Provider{credentials.ProviderOdoo}},
	intent.ERPCreateTicket:  {providers.ActionTicketCreate, []credentials.Provider{credentials.ProviderOdoo}},
}

// Routable reports whether an intent maps to a provider action. FAQ and
// GENERAL are answered locally and never reach a dispatcher.
func Routable(tag intent.Tag) bool {
	_, ok := routes[tag]
	return ok
}

// Dispatcher resolves an intent to a connected provider, validates the
// extracted slots, and runs the handler under the retry policy.
type Dispatcher struct {
	lifecycle *credentials.Lifecycle
	handlers  map[credentials.Provider]providers.Handler
	retryCfg  retry.RetryConfig
}

// New creates a dispatcher over the given handlers.
func New(lifecycle *credentials.Lifecycle, handlers ...providers.Handler) *Dispatcher {
	byProvider := make(map[credentials.Provider]providers.Handler, len(handlers))
	for _, h := range handlers {
		byProvider[h.Provider()] = h
	}
	return &Dispatcher{
		lifecycle: lifecycle,
		handlers:  byProvider,
		retryCfg:  retry.DefaultRetryConfig(),
	}
}

// SetRetryConfig overrides the handler retry policy, mainly for tests.
func (d *Dispatcher) SetRetryConfig(cfg retry.RetryConfig) {
	d.retryCfg = cfg
}

// Dispatch executes the provider action for an already-classified intent.
// It never returns an error: every failure mode collapses into an Outcome
// so the reply composer always has something to say.
func (d *Dispatcher) Dispatch(ctx context.Context, businessID uuid.UUID, in *intent.Intent) *Outcome {
	rt, ok := routes[in.Tag]
	if !ok {
		return &Outcome{
			Kind:   FatalFailure,
			Reason: ReasonProviderError,
			Intent: in.Tag,
			Detail: "intent has no provider action",
		}
	}

	values := slots.Values(in.Slots)
	if err := slots.Validate(in.Tag, values); err != nil {
		var incomplete *slots.IncompleteError
		if errors.As(err, &incomplete) {
			return &Outcome{
				Kind:    RecoverableFailure,
				Reason:  ReasonIncompleteSlots,
				Intent:  in.Tag,
				Missing: incomplete.Missing,
			}
		}
		return &Outcome{Kind: RecoverableFailure, Reason: ReasonValidation, Intent: in.Tag, Detail: err.Error()}
	}

	provider, cred, err := d.resolveCredential(ctx, businessID, rt.candidates)
	if err != nil {
		return d.credentialOutcome(in.Tag, provider, err)
	}

	handler := d.handlers[provider]
	if handler == nil {
		return &Outcome{
			Kind:     FatalFailure,
			Reason:   ReasonProviderError,
			Intent:   in.Tag,
			Provider: provider,
			Detail:   "no handler registered for provider",
		}
	}

	result, err := d.execute(ctx, handler, cred, rt.action, values)
	if err != nil && errors.Is(err, providers.ErrAuth) {
		// The stored token was rejected mid-request. One forced refresh,
		// one more try, then give up for this request.
		log.Warn().
			Str("business_id", businessID.String()).
			Str("provider", string(provider)).
			Str("action", string(rt.action)).
			Msg("provider rejected credential, forcing refresh")

		cred, err = d.lifecycle.ForceRefresh(ctx, businessID, provider)
		if err != nil {
			return &Outcome{
				Kind:     FatalFailure,
				Reason:   ReasonRefreshFailed,
				Intent:   in.Tag,
				Provider: provider,
				Detail:   err.Error(),
			}
		}
		result, err = d.execute(ctx, handler, cred, rt.action, values)
	}

	if err != nil {
		return d.executionOutcome(in.Tag, provider, err)
	}

	log.Info().
		Str("business_id", businessID.String()).
		Str("provider", string(provider)).
		Str("action", string(rt.action)).
		Msg("dispatch succeeded")

	return &Outcome{
		Kind:     Success,
		Intent:   in.Tag,
		Provider: provider,
		Result:   result,
	}
}

// resolveCredential walks the candidate providers and returns the first
// one the tenant has connected, with a currently-valid credential. The
// returned provider names who we were talking to even on error.
func (d *Dispatcher) resolveCredential(ctx context.Context, businessID uuid.UUID, candidates []credentials.Provider) (credentials.Provider, *credentials.Credential, error) {
	var lastErr error = credentials.ErrNoIntegration
	var lastProvider credentials.Provider
	for _, p := range candidates {
		cred, err := d.lifecycle.GetValidCredential(ctx, businessID, p)
		if err == nil {
			return p, cred, nil
		}
		lastProvider = p
		lastErr = err
		if !errors.Is(err, credentials.ErrNoIntegration) {
			// The tenant connected this provider but the credential is
			// broken; do not silently fall through to another provider.
			break
		}
	}
	return lastProvider, nil, lastErr
}

func (d *Dispatcher) credentialOutcome(tag intent.Tag, provider credentials.Provider, err error) *Outcome {
	switch {
	case errors.Is(err, credentials.ErrNoIntegration):
		return &Outcome{Kind: RecoverableFailure, Reason: ReasonNoIntegration, Intent: tag, Provider: provider}
	case errors.Is(err, credentials.ErrRefreshFailed):
		return &Outcome{Kind: RecoverableFailure, Reason: ReasonRefreshFailed, Intent: tag, Provider: provider, Detail: err.Error()}
	default:
		return &Outcome{Kind: FatalFailure, Reason: ReasonProviderError, Intent: tag, Provider: provider, Detail: err.Error()}
	}
}

// execute runs one handler call under the retry policy. Only transient
// errors are retried; auth and validation failures surface immediately.
func (d *Dispatcher) execute(ctx context.Context, handler providers.Handler, cred *credentials.Credential, action providers.Action, values slots.Values) (*providers.Result, error) {
	var result *providers.Result
	outcome := retry.RetryWithBackoff(ctx, d.retryCfg, func() error {
		var err error
		result, err = handler.Execute(ctx, cred, action, values)
		return err
	})
	if !outcome.Success {
		return nil, outcome.LastError
	}
	return result, nil
}

func (d *Dispatcher) executionOutcome(tag intent.Tag, provider credentials.Provider, err error) *Outcome {
	switch {
	case providers.IsValidation(err):
		return &Outcome{Kind: RecoverableFailure, Reason: ReasonValidation, Intent: tag, Provider: provider, Detail: err.Error()}
	case errors.Is(err, providers.ErrAuth):
		return &Outcome{Kind: FatalFailure, Reason: ReasonRefreshFailed, Intent: tag, Provider: provider, Detail: "credential rejected after refresh"}
	default:
		return &Outcome{Kind: FatalFailure, Reason: ReasonProviderError, Intent: tag, Provider: provider, Detail: err.Error()}
	}
}
