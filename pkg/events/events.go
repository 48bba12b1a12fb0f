package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/taskbounty/marketplace/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Identity events
	IdentityRegistered  = "identity.registered"
	IdentityVerified    = "identity.verified"
	IdentityEmailChange = "identity.email.changed"

	// Settlement events
	SettlementSucceeded    = "settlement.succeeded"
	SettlementInsufficient = "settlement.insufficient"
	PayoutCreated          = "payout.created"

	// Checkout events
	CheckoutSessionCreated = "checkout.session.created"
)

// Event payloads
type IdentityRegisteredEvent struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
}

type IdentityVerifiedEvent struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verified_at"`
}

type IdentityEmailChangedEvent struct {
	IdentityID string    `json:"identity_id"`
	OldEmail   string    `json:"old_email"`
	NewEmail   string    `json:"new_email"`
	ChangedAt  time.Time `json:"changed_at"`
}

type SettlementSucceededEvent struct {
	ConnectedAccountID string    `json:"connected_account_id"`
	TransferID         string    `json:"transfer_id"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	SettledAt          time.Time `json:"settled_at"`
}

type SettlementInsufficientEvent struct {
	ConnectedAccountID string `json:"connected_account_id"`
	Requested          int64  `json:"requested"`
	Available          int64  `json:"available"`
	Currency           string `json:"currency"`
}

type PayoutCreatedEvent struct {
	ConnectedAccountID string    `json:"connected_account_id"`
	PayoutID           string    `json:"payout_id"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	CreatedAt          time.Time `json:"created_at"`
}

type CheckoutSessionCreatedEvent struct {
	BountyID  string `json:"bounty_id"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}
