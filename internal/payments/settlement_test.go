package payments

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/taskbounty/marketplace/internal/domain"
)

// ---------- Mock processor ----------

type mockProcessor struct {
	balances   []*Balance // successive GetBalance responses
	balanceIdx int
	balanceErr error

	chargeCalls int
	chargeErr   error

	transferCalls    int
	transferErr      error
	lastTransferDest string
	lastTransferAmt  int64
	lastTransferCur  string
	lastTransferDesc string
	lastTransferKey  string

	payoutCalls        int
	payoutErr          error
	lastPayoutOnBehalf string
	lastPayoutDest     string
	lastPayoutKey      string

	lastSuccessURL string
	lastCancelURL  string
	lastItemName   string
	lastMetadata   map[string]string
	checkoutErr    error
}

func (m *mockProcessor) CreateConnectedAccount(_ context.Context, email string) (string, error) {
	return "acct_test", nil
}

func (m *mockProcessor) GetBalance(_ context.Context) (*Balance, error) {
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	bal := m.balances[m.balanceIdx]
	if m.balanceIdx < len(m.balances)-1 {
		m.balanceIdx++
	}
	return bal, nil
}

func (m *mockProcessor) CreateTestCharge(_ context.Context, amount int64, currency string) (string, error) {
	m.chargeCalls++
	if m.chargeErr != nil {
		return "", m.chargeErr
	}
	return "pi_test", nil
}

func (m *mockProcessor) CreateTransfer(_ context.Context, destinationAccountID string, amount int64, currency, description, idempotencyKey string) (string, error) {
	m.transferCalls++
	if m.transferErr != nil {
		return "", m.transferErr
	}
	m.lastTransferDest = destinationAccountID
	m.lastTransferAmt = amount
	m.lastTransferCur = currency
	m.lastTransferDesc = description
	m.lastTransferKey = idempotencyKey
	return "tr_123", nil
}

func (m *mockProcessor) CreatePayout(_ context.Context, onBehalfOfAccountID, externalAccountID string, amount int64, currency, description, idempotencyKey string) (string, error) {
	m.payoutCalls++
	if m.payoutErr != nil {
		return "", m.payoutErr
	}
	m.lastPayoutOnBehalf = onBehalfOfAccountID
	m.lastPayoutDest = externalAccountID
	m.lastPayoutKey = idempotencyKey
	return "po_123", nil
}

func (m *mockProcessor) CreateOnboardingLink(_ context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return "https://connect.example.com/onboard", nil
}

func (m *mockProcessor) CreateCheckoutSession(_ context.Context, amount int64, currency, itemName, successURL, cancelURL string, metadata map[string]string) (string, string, error) {
	if m.checkoutErr != nil {
		return "", "", m.checkoutErr
	}
	m.lastSuccessURL = successURL
	m.lastCancelURL = cancelURL
	m.lastItemName = itemName
	m.lastMetadata = metadata
	return "cs_123", "https://checkout.example.com/cs_123", nil
}

func usd(amount int64, live bool) *Balance {
	return &Balance{
		Available: []BalanceAmount{{Currency: "usd", Amount: amount}},
		Livemode:  live,
	}
}

func settlementReq(amount int64) *domain.SettlementRequest {
	return &domain.SettlementRequest{
		ConnectedAccountID: "acct_worker",
		Amount:             amount,
		Currency:           "usd",
		AttemptNonce:       "nonce-1",
	}
}

// ---------- SettleTransfer ----------

func TestSettleTransfer_SufficientBalance(t *testing.T) {
	proc := &mockProcessor{balances: []*Balance{usd(5000, true)}}
	o := NewSettlementOrchestrator(proc, nil)

	result, err := o.SettleTransfer(context.Background(), settlementReq(1000))
	if err != nil {
		t.Fatalf("SettleTransfer failed: %v", err)
	}
	if !result.Succeeded() || result.TransferID != "tr_123" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if proc.chargeCalls != 0 {
		t.Fatalf("no fallback expected, got %d charges", proc.chargeCalls)
	}
	if proc.lastTransferDest != "acct_worker" || proc.lastTransferAmt != 1000 {
		t.Fatalf("transfer got dest=%s amount=%d", proc.lastTransferDest, proc.lastTransferAmt)
	}
	if proc.lastTransferDesc == "" {
		t.Fatal("transfer must carry a description")
	}
}

func TestSettleTransfer_LiveModeInsufficientNoFallback(t *testing.T) {
	proc := &mockProcessor{balances: []*Balance{usd(500, true)}}
	o := NewSettlementOrchestrator(proc, nil)

	result, err := o.SettleTransfer(context.Background(), settlementReq(1000))
	if err != nil {
		t.Fatalf("SettleTransfer failed: %v", err)
	}
	if result.Status != domain.SettlementInsufficientStatus {
		t.Fatalf("expected insufficient funds, got %+v", result)
	}
	if proc.chargeCalls != 0 {
		t.Fatalf("live mode must never fund itself, got %d charges", proc.chargeCalls)
	}
	if proc.transferCalls != 0 {
		t.Fatalf("no transfer expected, got %d", proc.transferCalls)
	}
}

func TestSettleTransfer_TestModeFallbackSucceeds(t *testing.T) {
	proc := &mockProcessor{balances: []*Balance{usd(0, false), usd(1000, false)}}
	o := NewSettlementOrchestrator(proc, nil)

	result, err := o.SettleTransfer(context.Background(), settlementReq(1000))
	if err != nil {
		t.Fatalf("SettleTransfer failed: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success after top-up, got %+v", result)
	}
	if proc.chargeCalls != 1 {
		t.Fatalf("expected exactly one fallback charge, got %d", proc.chargeCalls)
	}
}

func TestSettleTransfer_TestModeFallbackStillShort(t *testing.T) {
	proc := &mockProcessor{balances: []*Balance{usd(0, false), usd(400, false)}}
	o := NewSettlementOrchestrator(proc, nil)

	result, err := o.SettleTransfer(context.Background(), settlementReq(1000))
	if err != nil {
		t.Fatalf("SettleTransfer failed: %v", err)
	}
	if result.Status != domain.SettlementInsufficientStatus {
		t.Fatalf("expected insufficient funds, got %+v", result)
	}
	if proc.chargeCalls != 1 {
		t.Fatalf("expected a single fallback attempt, got %d", proc.chargeCalls)
	}
	if proc.transferCalls != 0 {
		t.Fatalf("no transfer expected, got %d", proc.transferCalls)
	}
}

func TestSettleTransfer_CurrencyMatchIsCaseInsensitive(t *testing.T) {
	proc := &mockProcessor{balances: []*Balance{{
		Available: []BalanceAmount{
			{Currency: "USD", Amount: 600},
			{Currency: "usd", Amount: 600},
			{Currency: "eur", Amount: 100000},
		},
		Livemode: true,
	}}}
	o := NewSettlementOrchestrator(proc, nil)

	result, err := o.SettleTransfer(context.Background(), settlementReq(1000))
	if err != nil {
		t.Fatalf("SettleTransfer failed: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected 600+600 USD to cover 1000, got %+v", result)
	}
}

func TestSettleTransfer_ProcessorFailureAborts(t *testing.T) {
	procErr := &domain.ProcessorError{Op: "create_transfer", Detail: "boom"}
	proc := &mockProcessor{balances: []*Balance{usd(5000, true)}, transferErr: procErr}
	o := NewSettlementOrchestrator(proc, nil)

	_, err := o.SettleTransfer(context.Background(), settlementReq(1000))
	var pErr *domain.ProcessorError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	if !strings.Contains(pErr.Detail, "boom") {
		t.Fatalf("processor detail lost: %q", pErr.Detail)
	}
}

func TestSettleTransfer_FallbackChargeFailureAborts(t *testing.T) {
	proc := &mockProcessor{
		balances:  []*Balance{usd(0, false)},
		chargeErr: &domain.ProcessorError{Op: "create_test_charge", Detail: "card declined"},
	}
	o := NewSettlementOrchestrator(proc, nil)

	_, err := o.SettleTransfer(context.Background(), settlementReq(1000))
	var pErr *domain.ProcessorError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	if proc.transferCalls != 0 {
		t.Fatal("transfer must not run after a failed fallback")
	}
}

func TestSettleTransfer_IdempotencyKeyIsDeterministic(t *testing.T) {
	proc := &mockProcessor{balances: []*Balance{usd(5000, true), usd(5000, true)}}
	o := NewSettlementOrchestrator(proc, nil)

	if _, err := o.SettleTransfer(context.Background(), settlementReq(1000)); err != nil {
		t.Fatal(err)
	}
	first := proc.lastTransferKey

	if _, err := o.SettleTransfer(context.Background(), settlementReq(1000)); err != nil {
		t.Fatal(err)
	}
	if proc.lastTransferKey != first {
		t.Fatal("same request and nonce must produce the same idempotency key")
	}

	req := settlementReq(1000)
	req.AttemptNonce = "nonce-2"
	if _, err := o.SettleTransfer(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if proc.lastTransferKey == first {
		t.Fatal("a new nonce must produce a new idempotency key")
	}
}

func TestSettleTransfer_Validation(t *testing.T) {
	o := NewSettlementOrchestrator(&mockProcessor{}, nil)

	bad := []*domain.SettlementRequest{
		{Amount: 100, Currency: "usd"},
		{ConnectedAccountID: "acct", Amount: 0, Currency: "usd"},
		{ConnectedAccountID: "acct", Amount: -5, Currency: "usd"},
		{ConnectedAccountID: "acct", Amount: 100},
	}
	for _, req := range bad {
		if _, err := o.SettleTransfer(context.Background(), req); err == nil {
			t.Fatalf("expected validation error for %+v", req)
		}
	}
}

// ---------- SettlePayout ----------

func TestSettlePayout_ScopedToConnectedAccount(t *testing.T) {
	proc := &mockProcessor{}
	o := NewSettlementOrchestrator(proc, nil)

	req := settlementReq(2500)
	req.ExternalAccountID = "ba_worker_bank"

	payoutID, err := o.SettlePayout(context.Background(), req)
	if err != nil {
		t.Fatalf("SettlePayout failed: %v", err)
	}
	if payoutID != "po_123" {
		t.Fatalf("unexpected payout id %s", payoutID)
	}
	if proc.lastPayoutOnBehalf != "acct_worker" {
		t.Fatalf("payout must run on behalf of the connected account, got %q", proc.lastPayoutOnBehalf)
	}
	if proc.lastPayoutDest != "ba_worker_bank" {
		t.Fatalf("payout destination %q", proc.lastPayoutDest)
	}
}

func TestSettlePayout_RequiresExternalAccount(t *testing.T) {
	o := NewSettlementOrchestrator(&mockProcessor{}, nil)

	if _, err := o.SettlePayout(context.Background(), settlementReq(2500)); err == nil {
		t.Fatal("expected validation error without external account")
	}
}

func TestSettlePayout_ProcessorFailure(t *testing.T) {
	proc := &mockProcessor{payoutErr: &domain.ProcessorError{Op: "create_payout", Detail: "account frozen"}}
	o := NewSettlementOrchestrator(proc, nil)

	req := settlementReq(2500)
	req.ExternalAccountID = "ba_worker_bank"

	_, err := o.SettlePayout(context.Background(), req)
	var pErr *domain.ProcessorError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
}
