package dispatch

import (
	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/intent"
	"github.com/countplus7/wbot-backend-sub001/internal/providers"
)

// Kind is the terminal state of a dispatch.
type Kind string

const (
	// Success means the provider action completed.
	Success Kind = "success"
	// RecoverableFailure means the user or tenant can fix the problem and
	// try again: connect an integration, supply a missing field, correct
	// bad input.
	RecoverableFailure Kind = "recoverable_failure"
	// FatalFailure means retries are exhausted or the credential is beyond
	// repair for this request.
	FatalFailure Kind = "fatal_failure"
)

// Reason narrows a failure for reply composition and event reporting.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoIntegration   Reason = "no_integration"
	ReasonIncompleteSlots Reason = "incomplete_slots"
	ReasonRefreshFailed   Reason = "refresh_failed"
	ReasonValidation      Reason = "validation"
	ReasonProviderError   Reason = "provider_error"
)

// Outcome is what a dispatch produces. Composition consumes it; it never
// carries a raw error across the package boundary.
type Outcome struct {
	Kind     Kind
	Reason   Reason
	Intent   intent.Tag
	Provider credentials.Provider
	Result   *providers.Result

	// Missing lists absent required slots when Reason is incomplete_slots.
	Missing []string
	// Detail is a short human-readable cause for failures.
	Detail string
}
