package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/taskbounty/marketplace/internal/domain"
)

func checkoutIntent() *domain.CheckoutIntent {
	return &domain.CheckoutIntent{
		BountyID:  "bounty-42",
		Amount:    1500,
		Currency:  "usd",
		ItemName:  "Fix the flaky pipeline",
		CancelURL: "https://app.example.com/bounties/42",
	}
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	proc := &mockProcessor{}
	c := NewCheckoutInitiator(proc, "https://app.taskbounty.io/", nil)

	session, err := c.CreateCheckoutSession(context.Background(), checkoutIntent())
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}

	if session.ID != "cs_123" || session.URL == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if proc.lastMetadata["bounty_post_id"] != "bounty-42" {
		t.Fatalf("bounty id missing from metadata: %v", proc.lastMetadata)
	}
	if proc.lastCancelURL != "https://app.example.com/bounties/42" {
		t.Fatalf("cancel URL not passed through: %s", proc.lastCancelURL)
	}
	if proc.lastItemName != "Fix the flaky pipeline" {
		t.Fatalf("item name %q", proc.lastItemName)
	}
}

func TestCreateCheckoutSession_SuccessURLIsPlatformControlled(t *testing.T) {
	proc := &mockProcessor{}
	c := NewCheckoutInitiator(proc, "https://app.taskbounty.io", nil)

	if _, err := c.CreateCheckoutSession(context.Background(), checkoutIntent()); err != nil {
		t.Fatal(err)
	}

	want := "https://app.taskbounty.io/payment_success.html?session_id={CHECKOUT_SESSION_ID}"
	if proc.lastSuccessURL != want {
		t.Fatalf("success URL = %q, want %q", proc.lastSuccessURL, want)
	}
}

func TestCreateCheckoutSession_Validation(t *testing.T) {
	c := NewCheckoutInitiator(&mockProcessor{}, "https://app.taskbounty.io", nil)

	tests := []struct {
		name   string
		mutate func(*domain.CheckoutIntent)
	}{
		{"missing bounty id", func(i *domain.CheckoutIntent) { i.BountyID = "" }},
		{"zero amount", func(i *domain.CheckoutIntent) { i.Amount = 0 }},
		{"missing currency", func(i *domain.CheckoutIntent) { i.Currency = "" }},
		{"missing item name", func(i *domain.CheckoutIntent) { i.ItemName = "" }},
		{"missing cancel url", func(i *domain.CheckoutIntent) { i.CancelURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := checkoutIntent()
			tt.mutate(intent)
			if _, err := c.CreateCheckoutSession(context.Background(), intent); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateCheckoutSession_ProcessorFailure(t *testing.T) {
	proc := &mockProcessor{checkoutErr: &domain.ProcessorError{Op: "create_checkout_session", Detail: "rate limited"}}
	c := NewCheckoutInitiator(proc, "https://app.taskbounty.io", nil)

	_, err := c.CreateCheckoutSession(context.Background(), checkoutIntent())
	var pErr *domain.ProcessorError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
}
