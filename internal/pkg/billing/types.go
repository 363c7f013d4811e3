package billing

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// Recognized DodoPayments event types. Anything else is acknowledged and
// ignored.
const (
	EventSubscriptionCreated     = "subscription.created"
	EventSubscriptionUpdated     = "subscription.updated"
	EventSubscriptionActive      = "subscription.active"
	EventSubscriptionRenewed     = "subscription.renewed"
	EventSubscriptionPlanChanged = "subscription.plan_changed"
	EventSubscriptionOnHold      = "subscription.on_hold"
	EventSubscriptionCanceled    = "subscription.canceled"
	EventSubscriptionExpired     = "subscription.expired"
	EventSubscriptionFailed      = "subscription.failed"

	EventPaymentSucceeded  = "payment.succeeded"
	EventPaymentProcessing = "payment.processing"
	EventPaymentFailed     = "payment.failed"
	EventPaymentCancelled  = "payment.cancelled"

	EventCustomerCreated = "customer.created"
	EventCustomerUpdated = "customer.updated"
)

// EventEnvelope is the outer shape of every provider webhook body. Data stays
// raw until the dispatcher knows which payload schema applies.
type EventEnvelope struct {
	EventID string          `json:"id" validate:"required"`
	Type    string          `json:"type" validate:"required"`
	Data    json.RawMessage `json:"data"`
}

func (e *EventEnvelope) Validate() error {
	v := validator.New()

	return v.Struct(e)
}

// ParseEventEnvelope decodes a raw webhook body. Some provider deliveries omit
// the body-level id; the webhook-id header value is used as fallback so the
// ledger still gets a stable idempotency key.
func ParseEventEnvelope(raw []byte, fallbackID string) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.EventID == "" {
		env.EventID = fallbackID
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// CustomerRef is the customer block embedded in subscription and payment
// payloads. Field naming varies across provider event versions, hence the
// sibling id fields.
type CustomerRef struct {
	CustomerID string `json:"customer_id"`
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

// SubscriptionData is the payload carried by subscription.* events. Several
// logical values appear under multiple candidate field names; use the
// Resolve*/Period* accessors instead of reading fields directly.
type SubscriptionData struct {
	SubscriptionID string      `json:"subscription_id"`
	Customer       CustomerRef `json:"customer"`
	CustomerID     string      `json:"customer_id"`
	Email          string      `json:"email"`
	Status         string      `json:"status"`
	ProductID      string      `json:"product_id"`

	CurrentPeriodStart  *time.Time `json:"current_period_start"`
	CurrentPeriodEnd    *time.Time `json:"current_period_end"`
	PreviousBillingDate *time.Time `json:"previous_billing_date"`
	NextBillingDate     *time.Time `json:"next_billing_date"`
	CreatedAt           *time.Time `json:"created_at"`
	ExpiresAt           *time.Time `json:"expires_at"`

	CancelAtNextBillingDate bool       `json:"cancel_at_next_billing_date"`
	CancelledAt             *time.Time `json:"cancelled_at"`
	CanceledAt              *time.Time `json:"canceled_at"`
	TrialStart              *time.Time `json:"trial_start"`
	TrialEnd                *time.Time `json:"trial_end"`

	Metadata map[string]string `json:"metadata"`
}

// PaymentData is the payload carried by payment.* events.
type PaymentData struct {
	PaymentID      string      `json:"payment_id"`
	SubscriptionID string      `json:"subscription_id"`
	Customer       CustomerRef `json:"customer"`
	CustomerID     string      `json:"customer_id"`
	Email          string      `json:"email"`
	TotalAmount    *int64      `json:"total_amount"`
	Amount         *int64      `json:"amount"`
	Currency       string      `json:"currency"`

	Metadata map[string]string `json:"metadata"`
}

// CustomerData is the payload carried by customer.* events.
type CustomerData struct {
	CustomerID string `json:"customer_id"`
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`

	Metadata map[string]string `json:"metadata"`
}
