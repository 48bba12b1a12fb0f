package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskbounty/marketplace/internal/domain"
	"github.com/taskbounty/marketplace/pkg/events"
	"github.com/taskbounty/marketplace/pkg/logger"
)

// CheckoutInitiator builds hosted funding sessions for bounties. The success
// URL is always constructed from the platform base URL so the completion
// redirect routes back through our confirmation endpoint; caller-supplied
// success URLs are never trusted.
type CheckoutInitiator struct {
	processor ProcessorClient
	baseURL   string
	eventBus  events.Publisher
}

func NewCheckoutInitiator(processor ProcessorClient, baseURL string, eventBus events.Publisher) *CheckoutInitiator {
	return &CheckoutInitiator{
		processor: processor,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		eventBus:  eventBus,
	}
}

func (c *CheckoutInitiator) CreateCheckoutSession(ctx context.Context, intent *domain.CheckoutIntent) (*domain.CheckoutSession, error) {
	if err := intent.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	successURL := c.baseURL + "/payment_success.html?session_id={CHECKOUT_SESSION_ID}"

	// The bounty id rides along as processor metadata so the asynchronous
	// completion notification can be reconciled back to the bounty.
	metadata := map[string]string{"bounty_post_id": intent.BountyID}

	sessionID, url, err := c.processor.CreateCheckoutSession(ctx, intent.Amount, intent.Currency, intent.ItemName, successURL, intent.CancelURL, metadata)
	if err != nil {
		return nil, fmt.Errorf("checkout session failed: %w", err)
	}

	if c.eventBus != nil {
		if err := c.eventBus.Publish(ctx, events.CheckoutSessionCreated, events.CheckoutSessionCreatedEvent{
			BountyID:  intent.BountyID,
			SessionID: sessionID,
			Amount:    intent.Amount,
			Currency:  intent.Currency,
		}); err != nil {
			logger.WarnContext(ctx, "Failed to publish event", "subject", events.CheckoutSessionCreated, "error", err)
		}
	}

	return &domain.CheckoutSession{ID: sessionID, URL: url}, nil
}
