package payments

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taskbounty/marketplace/internal/domain"
	"github.com/taskbounty/marketplace/pkg/events"
	"github.com/taskbounty/marketplace/pkg/logger"
)

// SettlementOrchestrator moves funds from the platform balance to a worker's
// connected account, and onward to their bank. The processor is the single
// source of truth for balance; nothing is cached locally.
type SettlementOrchestrator struct {
	processor ProcessorClient
	eventBus  events.Publisher
}

func NewSettlementOrchestrator(processor ProcessorClient, eventBus events.Publisher) *SettlementOrchestrator {
	return &SettlementOrchestrator{
		processor: processor,
		eventBus:  eventBus,
	}
}

// SettleTransfer runs the balance-check → (optional test-mode fallback
// funding) → transfer sequence. InsufficientFunds is a normal business
// outcome carried in the result; processor failures abort and return an
// error wrapping *domain.ProcessorError.
func (o *SettlementOrchestrator) SettleTransfer(ctx context.Context, req *domain.SettlementRequest) (*domain.SettlementResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	bal, err := o.processor.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("balance lookup failed: %w", err)
	}

	available := sumAvailable(bal, req.Currency)

	if available < req.Amount {
		// Live mode never fabricates funds; the shortfall is final.
		if bal.Livemode {
			return o.insufficient(ctx, req, available), nil
		}

		logger.WarnContext(ctx, "Insufficient balance, attempting test top-up",
			"available", available, "requested", req.Amount, "currency", req.Currency)

		if _, err := o.processor.CreateTestCharge(ctx, req.Amount, req.Currency); err != nil {
			return nil, fmt.Errorf("fallback funding failed: %w", err)
		}

		bal, err = o.processor.GetBalance(ctx)
		if err != nil {
			return nil, fmt.Errorf("balance re-check failed: %w", err)
		}

		available = sumAvailable(bal, req.Currency)
		if available < req.Amount {
			// One fallback round only.
			logger.ErrorContext(ctx, "Still insufficient balance after test top-up",
				"available", available, "requested", req.Amount)
			return o.insufficient(ctx, req, available), nil
		}
	}

	description := fmt.Sprintf("Bounty settlement to %s", req.ConnectedAccountID)
	transferID, err := o.processor.CreateTransfer(ctx, req.ConnectedAccountID, req.Amount, req.Currency, description, transferIdempotencyKey(req))
	if err != nil {
		return nil, fmt.Errorf("transfer failed: %w", err)
	}

	o.publish(ctx, events.SettlementSucceeded, events.SettlementSucceededEvent{
		ConnectedAccountID: req.ConnectedAccountID,
		TransferID:         transferID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		SettledAt:          time.Now(),
	})

	return &domain.SettlementResult{
		Status:     domain.SettlementSucceededStatus,
		TransferID: transferID,
	}, nil
}

// SettlePayout pushes funds from the connected account's sub-balance to the
// worker's external bank account.
func (o *SettlementOrchestrator) SettlePayout(ctx context.Context, req *domain.SettlementRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if req.ExternalAccountID == "" {
		return "", fmt.Errorf("validation failed: external_account_id is required")
	}

	description := fmt.Sprintf("Bounty payout to %s", req.ExternalAccountID)
	payoutID, err := o.processor.CreatePayout(ctx, req.ConnectedAccountID, req.ExternalAccountID, req.Amount, req.Currency, description, payoutIdempotencyKey(req))
	if err != nil {
		return "", fmt.Errorf("payout failed: %w", err)
	}

	o.publish(ctx, events.PayoutCreated, events.PayoutCreatedEvent{
		ConnectedAccountID: req.ConnectedAccountID,
		PayoutID:           payoutID,
		Amount:             req.Amount,
		Currency:           req.Currency,
		CreatedAt:          time.Now(),
	})

	return payoutID, nil
}

func (o *SettlementOrchestrator) insufficient(ctx context.Context, req *domain.SettlementRequest, available int64) *domain.SettlementResult {
	o.publish(ctx, events.SettlementInsufficient, events.SettlementInsufficientEvent{
		ConnectedAccountID: req.ConnectedAccountID,
		Requested:          req.Amount,
		Available:          available,
		Currency:           req.Currency,
	})
	return &domain.SettlementResult{
		Status:    domain.SettlementInsufficientStatus,
		Available: available,
	}
}

func (o *SettlementOrchestrator) publish(ctx context.Context, subject string, payload interface{}) {
	if o.eventBus == nil {
		return
	}
	if err := o.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

// sumAvailable adds up the processor-reported available amounts matching the
// requested currency. Integer minor units throughout; currency codes compare
// case-insensitively.
func sumAvailable(bal *Balance, currency string) int64 {
	var sum int64
	for _, avail := range bal.Available {
		if strings.EqualFold(avail.Currency, currency) {
			sum += avail.Amount
		}
	}
	return sum
}

// Idempotency keys derive from the request content plus the caller's attempt
// nonce, so a caller retry after a timeout replays the same processor call
// instead of duplicating the movement. A fresh nonce starts a new attempt.
func transferIdempotencyKey(req *domain.SettlementRequest) string {
	return contentKey("transfer", req.ConnectedAccountID, req.Amount, req.Currency, req.AttemptNonce)
}

func payoutIdempotencyKey(req *domain.SettlementRequest) string {
	return contentKey("payout", req.ConnectedAccountID+"/"+req.ExternalAccountID, req.Amount, req.Currency, req.AttemptNonce)
}

func contentKey(kind, destination string, amount int64, currency, nonce string) string {
	if nonce == "" {
		nonce = uuid.NewString()
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%s", kind, destination, amount, strings.ToLower(currency), nonce)))
	return fmt.Sprintf("%x", h)
}
