package models

import "time"

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusRenewed   = "renewed"
	SubscriptionStatusSuspended = "suspended"
	SubscriptionStatusOnHold    = "on_hold"
	SubscriptionStatusCanceled  = "canceled"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusFailed    = "failed"
)

// Subscription mirrors a DodoPayments subscription, keyed by the provider's
// subscription id. Mutated exclusively by webhook handlers (upsert) and the
// grace-period sweep.
//
// PaymentFailureCount / NextPaymentRetryAt / GracePeriodEndsAt carry the
// grace-period state machine: seeded by a failed payment, advanced by the
// grace sweep, cleared by a settled payment.
type Subscription struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	UserID              string     `gorm:"type:char(36);not null;index" json:"user_id"`
	DodoSubscriptionID  string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_dodo_sub_id" json:"dodo_subscription_id"`
	Status              string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	ProductID           string     `gorm:"type:varchar(191)" json:"product_id"`
	CurrentPeriodStart  *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd    *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtNextBilling bool       `gorm:"default:false" json:"cancel_at_next_billing"`
	CanceledAt          *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	TrialStart          *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd            *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	PaymentFailureCount int        `gorm:"not null;default:0" json:"payment_failure_count"`
	NextPaymentRetryAt  *time.Time `gorm:"type:timestamp;default:null;index" json:"next_payment_retry_at,omitempty"`
	GracePeriodEndsAt   *time.Time `gorm:"type:timestamp;default:null" json:"grace_period_ends_at,omitempty"`
	MetadataJSON        string     `gorm:"type:longtext" json:"metadata_json"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
