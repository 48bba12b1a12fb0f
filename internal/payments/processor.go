package payments

import "context"

// Balance is the processor-reported platform balance. Amounts are integer
// minor units per currency.
type Balance struct {
	Available []BalanceAmount
	Livemode  bool
}

type BalanceAmount struct {
	Currency string
	Amount   int64
}

// ProcessorClient abstracts the external payment processor. Pure
// request/response; no local state. Every call is a blocking network
// round-trip bounded by the client's configured timeout, and every failure
// is reported as a *domain.ProcessorError.
type ProcessorClient interface {
	CreateConnectedAccount(ctx context.Context, email string) (string, error)
	GetBalance(ctx context.Context) (*Balance, error)
	CreateTestCharge(ctx context.Context, amount int64, currency string) (string, error)
	CreateTransfer(ctx context.Context, destinationAccountID string, amount int64, currency, description, idempotencyKey string) (string, error)
	CreatePayout(ctx context.Context, onBehalfOfAccountID, externalAccountID string, amount int64, currency, description, idempotencyKey string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, amount int64, currency, itemName, successURL, cancelURL string, metadata map[string]string) (sessionID, url string, err error)
}
