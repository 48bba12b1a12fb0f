package payments

import (
	"context"
	"errors"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/account"
	"github.com/stripe/stripe-go/v76/accountlink"
	"github.com/stripe/stripe-go/v76/balance"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/paymentmethod"
	"github.com/stripe/stripe-go/v76/payout"
	"github.com/stripe/stripe-go/v76/transfer"
	"github.com/taskbounty/marketplace/internal/domain"
	"github.com/taskbounty/marketplace/pkg/logger"
)

// Test card that succeeds for charges but whose funds land in the available
// balance immediately, so test-mode top-ups are usable for transfers.
const testTopUpCard = "4000000000000077"

type StripeClient struct {
	timeout time.Duration
}

func NewStripeClient(secretKey string, timeout time.Duration) *StripeClient {
	stripe.Key = secretKey
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StripeClient{timeout: timeout}
}

func (c *StripeClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *StripeClient) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String("US"),
		Email:   stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx

	acct, err := account.New(params)
	if err != nil {
		return "", processorError("create_connected_account", err)
	}

	logger.InfoContext(ctx, "Connected account created", "account_id", acct.ID)
	return acct.ID, nil
}

func (c *StripeClient) GetBalance(ctx context.Context) (*Balance, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.BalanceParams{}
	params.Context = ctx

	bal, err := balance.Get(params)
	if err != nil {
		return nil, processorError("get_balance", err)
	}

	result := &Balance{Livemode: bal.Livemode}
	for _, avail := range bal.Available {
		result.Available = append(result.Available, BalanceAmount{
			Currency: string(avail.Currency),
			Amount:   avail.Amount,
		})
	}
	return result, nil
}

func (c *StripeClient) CreateTestCharge(ctx context.Context, amount int64, currency string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	pmParams := &stripe.PaymentMethodParams{
		Type: stripe.String("card"),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(testTopUpCard),
			ExpMonth: stripe.Int64(12),
			ExpYear:  stripe.Int64(2026),
			CVC:      stripe.String("123"),
		},
	}
	pmParams.Context = ctx

	pm, err := paymentmethod.New(pmParams)
	if err != nil {
		return "", processorError("create_test_payment_method", err)
	}

	piParams := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(pm.ID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	piParams.Context = ctx

	pi, err := paymentintent.New(piParams)
	if err != nil {
		return "", processorError("create_test_charge", err)
	}

	logger.InfoContext(ctx, "Test top-up charge confirmed", "payment_intent_id", pi.ID, "amount", amount, "currency", currency)
	return pi.ID, nil
}

func (c *StripeClient) CreateTransfer(ctx context.Context, destinationAccountID string, amount int64, currency, description, idempotencyKey string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destinationAccountID),
		Description: stripe.String(description),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	tr, err := transfer.New(params)
	if err != nil {
		return "", processorError("create_transfer", err)
	}

	logger.InfoContext(ctx, "Transfer complete", "transfer_id", tr.ID, "destination", destinationAccountID)
	return tr.ID, nil
}

func (c *StripeClient) CreatePayout(ctx context.Context, onBehalfOfAccountID, externalAccountID string, amount int64, currency, description, idempotencyKey string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(externalAccountID),
		Description: stripe.String(description),
	}
	params.Context = ctx
	// Payouts debit the connected account's own sub-balance, so the call
	// must run on behalf of that account, not the platform.
	params.SetStripeAccount(onBehalfOfAccountID)
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	po, err := payout.New(params)
	if err != nil {
		return "", processorError("create_payout", err)
	}

	logger.InfoContext(ctx, "Payout complete", "payout_id", po.ID, "account", onBehalfOfAccountID)
	return po.ID, nil
}

func (c *StripeClient) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", processorError("create_onboarding_link", err)
	}

	return link.URL, nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, amount int64, currency, itemName, successURL, cancelURL string, metadata map[string]string) (string, string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(itemName),
					},
				},
			},
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := session.New(params)
	if err != nil {
		return "", "", processorError("create_checkout_session", err)
	}

	logger.InfoContext(ctx, "Checkout session created", "session_id", sess.ID)
	return sess.ID, sess.URL, nil
}

// processorError preserves the processor's own message for diagnostics.
func processorError(op string, err error) *domain.ProcessorError {
	detail := err.Error()
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.Msg != "" {
			detail = sErr.Msg
		} else if sErr.Code != "" {
			detail = string(sErr.Code)
		}
	}
	return &domain.ProcessorError{Op: op, Detail: detail, Err: err}
}
