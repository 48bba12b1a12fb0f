package domain

import "fmt"

// SettlementRequest describes one money-movement intent. Amounts are integer
// minor units; floating point never touches settlement math.
type SettlementRequest struct {
	ConnectedAccountID string `json:"connected_account_id"`
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	ExternalAccountID  string `json:"external_account_id,omitempty"`
	// AttemptNonce lets callers retry a timed-out settlement without risking
	// a duplicate transfer; it feeds the processor idempotency key.
	AttemptNonce string `json:"attempt_nonce,omitempty"`
}

func (r *SettlementRequest) Validate() error {
	if r.ConnectedAccountID == "" {
		return fmt.Errorf("connected_account_id is required")
	}
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be a positive integer in minor units")
	}
	if r.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

type SettlementStatus string

const (
	SettlementSucceededStatus    SettlementStatus = "succeeded"
	SettlementInsufficientStatus SettlementStatus = "insufficient_funds"
)

// SettlementResult is the outcome of one orchestration attempt. Processor
// failures are not modeled here; they surface as *ProcessorError.
type SettlementResult struct {
	Status     SettlementStatus `json:"status"`
	TransferID string           `json:"transfer_id,omitempty"`
	Available  int64            `json:"available,omitempty"`
}

func (r *SettlementResult) Succeeded() bool {
	return r.Status == SettlementSucceededStatus
}

// CheckoutIntent describes a hosted funding session for one bounty. The
// success URL is always built by the platform; a caller-supplied value is
// ignored for the redirect target.
type CheckoutIntent struct {
	BountyID  string `json:"bounty_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	ItemName  string `json:"item_name"`
	CancelURL string `json:"cancel_url"`
}

func (i *CheckoutIntent) Validate() error {
	if i.BountyID == "" {
		return fmt.Errorf("bounty_id is required")
	}
	if i.Amount <= 0 {
		return fmt.Errorf("amount must be a positive integer in minor units")
	}
	if i.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if i.ItemName == "" {
		return fmt.Errorf("item_name is required")
	}
	if i.CancelURL == "" {
		return fmt.Errorf("cancel_url is required")
	}
	return nil
}

// CheckoutSession is the processor-issued session handle; opaque to us.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
