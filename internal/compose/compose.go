package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/dispatch"
	"github.com/countplus7/wbot-backend-sub001/internal/tenant"
)

// DefaultTimeout bounds the optional rephrasing call.
const DefaultTimeout = 8 * time.Second

// Composer turns dispatch outcomes into user-facing replies. The
// deterministic templates are the source of truth; when a model is
// configured it only rephrases them in the tenant's tone, and any model
// failure falls back to the template. Composition never fails and never
// returns an empty string.
type Composer struct {
	model   llms.Model
	timeout time.Duration
}

// New creates a composer. model may be nil, in which case replies are the
// plain templates.
func New(model llms.Model, timeout time.Duration) *Composer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Composer{model: model, timeout: timeout}
}

// Reply renders the outcome of a dispatched intent.
func (c *Composer) Reply(ctx context.Context, business *tenant.Business, out *dispatch.Outcome) string {
	base := template(out)
	return c.rephrase(ctx, business, base)
}

// General answers small talk and anything that matched no intent.
func (c *Composer) General(ctx context.Context, business *tenant.Business, userText string) string {
	base := fmt.Sprintf("Thanks for your message! I can help with emails, calendar, contacts, orders and invoices for %s. What would you like to do?", business.Name)
	if c.model == nil {
		return base
	}

	modelCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"You are a %s assistant for the business %q. Reply briefly and helpfully to this customer message. Do not invent facts about the business.\n\nCustomer: %s",
		toneOf(business), business.Name, userText)
	reply, err := llms.GenerateFromSinglePrompt(modelCtx, c.model, prompt, llms.WithTemperature(0.4))
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Debug().Err(err).Msg("general reply generation failed, using template")
		return base
	}
	return strings.TrimSpace(reply)
}

// FAQ wraps a stored FAQ answer, optionally restyled to the tenant tone.
func (c *Composer) FAQ(ctx context.Context, business *tenant.Business, answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return c.General(ctx, business, "")
	}
	return c.rephrase(ctx, business, answer)
}

// rephrase asks the model to restate base in the tenant's tone. The
// template answer wins whenever the model misbehaves.
func (c *Composer) rephrase(ctx context.Context, business *tenant.Business, base string) string {
	if c.model == nil {
		return base
	}

	modelCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Rewrite the following assistant reply in a %s tone for customers of %q. Keep every fact, name, date and number exactly as given. Reply with the rewritten text only.\n\n%s",
		toneOf(business), business.Name, base)
	reply, err := llms.GenerateFromSinglePrompt(modelCtx, c.model, prompt, llms.WithTemperature(0.3))
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Debug().Err(err).Msg("reply rephrasing failed, using template")
		return base
	}
	return strings.TrimSpace(reply)
}

func toneOf(business *tenant.Business) string {
	if business != nil && business.Tone != "" {
		return business.Tone
	}
	return "friendly, professional"
}

// template is the deterministic rendering of an outcome.
func template(out *dispatch.Outcome) string {
	if out == nil {
		return "Sorry, something went wrong on our side. Please try again."
	}

	switch out.Kind {
	case dispatch.Success:
		if out.Result != nil && strings.TrimSpace(out.Result.Summary) != "" {
			return out.Result.Summary
		}
		return "Done!"
	case dispatch.RecoverableFailure:
		return recoverableTemplate(out)
	default:
		return fatalTemplate(out)
	}
}

func recoverableTemplate(out *dispatch.Outcome) string {
	switch out.Reason {
	case dispatch.ReasonNoIntegration:
		return fmt.Sprintf("This business hasn't connected %s yet, so I can't do that. An administrator can connect it from the dashboard.", familyName(out))
	case dispatch.ReasonIncompleteSlots:
		return fmt.Sprintf("I need a bit more information to do that. Could you tell me the %s?", humanList(out.Missing))
	case dispatch.ReasonRefreshFailed:
		return fmt.Sprintf("I couldn't reach the %s account right now. The connection may need to be re-authorized.", familyName(out))
	case dispatch.ReasonValidation:
		if out.Detail != "" {
			return fmt.Sprintf("That didn't go through: %s. Could you check and try again?", out.Detail)
		}
		return "That didn't go through. Could you check the details and try again?"
	default:
		return "I couldn't complete that. Please try again."
	}
}

func fatalTemplate(out *dispatch.Outcome) string {
	switch out.Reason {
	case dispatch.ReasonRefreshFailed:
		return fmt.Sprintf("The %s connection isn't working and needs to be re-authorized before I can do that.", familyName(out))
	default:
		return fmt.Sprintf("Something went wrong talking to %s. Please try again in a few minutes.", familyName(out))
	}
}

// familyName names the service in user terms, falling back to the intent
// family when no provider was ever resolved.
func familyName(out *dispatch.Outcome) string {
	switch out.Provider {
	case credentials.ProviderGoogle:
		return "the email and calendar account"
	case credentials.ProviderHubspot, credentials.ProviderZoho:
		return "the CRM"
	case credentials.ProviderOdoo:
		return "the ERP system"
	}

	tag := string(out.Intent)
	switch {
	case strings.HasPrefix(tag, "EMAIL"):
		return "an email account"
	case strings.HasPrefix(tag, "CALENDAR"):
		return "a calendar account"
	case strings.HasPrefix(tag, "CRM"):
		return "a CRM"
	case strings.HasPrefix(tag, "ERP"):
		return "an ERP system"
	default:
		return "the service"
	}
}

func humanList(items []string) string {
	switch len(items) {
	case 0:
		return "missing details"
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
