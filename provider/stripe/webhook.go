// Package stripe adapts Stripe webhook deliveries to licensor billing events.
//
// A Webhook verifies the Stripe-Signature header, decodes the events the
// engine cares about into billing.CheckoutCompleted and
// billing.SubscriptionChanged, and hands them to a Handler. Transport is
// the caller's concern: pass the raw request body and signature header.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/plan"
)

// Event types the webhook acts on.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var (
	// ErrNoSecret is returned when the webhook has no signing secret.
	ErrNoSecret = errors.New("stripe: webhook secret not configured")

	// ErrInvalidSignature is returned when the payload fails verification.
	ErrInvalidSignature = errors.New("stripe: invalid webhook signature")

	// ErrMalformedEvent is returned when a verified event cannot be decoded.
	ErrMalformedEvent = errors.New("stripe: malformed event payload")
)

// Handler applies decoded billing events. *licensor.Licensor implements it.
type Handler interface {
	HandleCheckout(ctx context.Context, ev billing.CheckoutCompleted) (*licensor.CheckoutResult, error)
	HandleSubscriptionChanged(ctx context.Context, ev billing.SubscriptionChanged) error
}

var _ Handler = (*licensor.Licensor)(nil)

// Webhook verifies and dispatches Stripe events.
type Webhook struct {
	secret  string
	handler Handler
	logger  *slog.Logger
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Webhook) { w.logger = logger }
}

// NewWebhook returns a Webhook verifying with secret and dispatching to h.
func NewWebhook(secret string, h Handler, opts ...Option) *Webhook {
	w := &Webhook{
		secret:  strings.TrimSpace(secret),
		handler: h,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Verify checks the signature of payload and returns the Stripe event.
func (w *Webhook) Verify(payload []byte, sigHeader string) (stripelib.Event, error) {
	return Verify(payload, sigHeader, w.secret)
}

// Verify checks the signature of payload against secret.
func Verify(payload []byte, sigHeader, secret string) (stripelib.Event, error) {
	if strings.TrimSpace(secret) == "" {
		return stripelib.Event{}, ErrNoSecret
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripelib.Event{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return event, nil
}

// Handle verifies a delivery and applies it. Unhandled event types are
// acknowledged and ignored; handled reports whether the event was applied.
func (w *Webhook) Handle(ctx context.Context, payload []byte, sigHeader string) (handled bool, err error) {
	event, err := w.Verify(payload, sigHeader)
	if err != nil {
		return false, err
	}

	switch string(event.Type) {
	case EventCheckoutCompleted:
		ev, err := DecodeCheckout(event)
		if err != nil {
			return false, err
		}
		if _, err := w.handler.HandleCheckout(ctx, ev); err != nil {
			return false, fmt.Errorf("stripe: apply %s %s: %w", event.Type, event.ID, err)
		}

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		ev, err := DecodeSubscription(event)
		if err != nil {
			return false, err
		}
		if err := w.handler.HandleSubscriptionChanged(ctx, ev); err != nil {
			return false, fmt.Errorf("stripe: apply %s %s: %w", event.Type, event.ID, err)
		}

	default:
		w.logger.Info("stripe webhook ignored",
			"type", string(event.Type),
			"event_id", event.ID,
		)
		return false, nil
	}

	w.logger.Info("stripe webhook applied",
		"type", string(event.Type),
		"event_id", event.ID,
	)
	return true, nil
}

// checkoutSession is the subset of a checkout.session object we read.
type checkoutSession struct {
	ID                string `json:"id"`
	Mode              string `json:"mode"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// DecodeCheckout maps a checkout.session.completed event onto a
// billing.CheckoutCompleted. Plan, service, credits and site details travel
// in the session metadata.
func DecodeCheckout(event stripelib.Event) (billing.CheckoutCompleted, error) {
	var s checkoutSession
	if event.Data == nil {
		return billing.CheckoutCompleted{}, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return billing.CheckoutCompleted{}, fmt.Errorf("%w: decode checkout.session: %w", ErrMalformedEvent, err)
	}
	if s.ID == "" {
		return billing.CheckoutCompleted{}, fmt.Errorf("%w: checkout session without id", ErrMalformedEvent)
	}

	md := s.Metadata
	ev := billing.CheckoutCompleted{
		SessionID:      s.ID,
		Email:          firstNonEmpty(s.CustomerDetails.Email, s.CustomerEmail, md["email"]),
		UserID:         firstNonEmpty(md["user_id"], s.ClientReferenceID),
		Service:        plan.Service(strings.TrimSpace(md["service"])),
		CustomerID:     s.Customer,
		SubscriptionID: s.Subscription,
		LicenseKey:     strings.TrimSpace(md["license_key"]),
		Site: license.SiteInfo{
			SiteURL:   strings.TrimSpace(md["site_url"]),
			SiteHash:  strings.TrimSpace(md["site_hash"]),
			InstallID: strings.TrimSpace(md["install_id"]),
		},
	}
	if p := strings.TrimSpace(md["plan"]); p != "" {
		ev.Plan = plan.Parse(p)
	}
	if c := strings.TrimSpace(md["credits"]); c != "" {
		n, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			return billing.CheckoutCompleted{}, fmt.Errorf("%w: credits metadata %q", ErrMalformedEvent, c)
		}
		ev.Credits = n
	}
	return ev, nil
}

// subscriptionObject is the subset of a subscription object we read. Newer
// API versions carry the period end on the items rather than the root.
type subscriptionObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// DecodeSubscription maps a customer.subscription.updated or .deleted
// event onto a billing.SubscriptionChanged.
func DecodeSubscription(event stripelib.Event) (billing.SubscriptionChanged, error) {
	var sub subscriptionObject
	if event.Data == nil {
		return billing.SubscriptionChanged{}, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return billing.SubscriptionChanged{}, fmt.Errorf("%w: decode subscription: %w", ErrMalformedEvent, err)
	}
	if sub.ID == "" {
		return billing.SubscriptionChanged{}, fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
	}

	ev := billing.SubscriptionChanged{
		SubscriptionID: sub.ID,
		CustomerID:     sub.Customer,
		Status:         sub.Status,
		Deleted:        string(event.Type) == EventSubscriptionDeleted,
	}

	periodEnd := sub.CurrentPeriodEnd
	planName := sub.Metadata["plan"]
	for _, item := range sub.Items.Data {
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
		if planName == "" {
			planName = item.Price.Metadata["plan"]
		}
	}
	if periodEnd > 0 {
		ev.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	if planName = strings.TrimSpace(planName); planName != "" {
		ev.Plan = plan.Parse(planName)
	}
	return ev, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
