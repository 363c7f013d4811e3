package billing

import (
	"strings"
	"time"
)

// Event payloads carry the same logical value under different field names
// depending on the provider's event version. Each accessor below encodes the
// fallback order as an explicit candidate list; the first non-empty /
// non-nil candidate wins.

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); v != "" {
			return v
		}
	}
	return ""
}

func firstNonNilTime(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// ResolveCustomerID returns the provider customer id, preferring the nested
// customer block over the flat payload field.
func (d *SubscriptionData) ResolveCustomerID() string {
	return firstNonEmpty(d.Customer.CustomerID, d.Customer.ID, d.CustomerID)
}

// ResolveEmail returns the customer email carried on the event, if any.
func (d *SubscriptionData) ResolveEmail() string {
	return firstNonEmpty(d.Customer.Email, d.Email)
}

// PeriodStart resolves the billing period start across event versions:
// current_period_start, then previous_billing_date, then created_at.
func (d *SubscriptionData) PeriodStart() *time.Time {
	return firstNonNilTime(d.CurrentPeriodStart, d.PreviousBillingDate, d.CreatedAt)
}

// PeriodEnd resolves the billing period end across event versions:
// current_period_end, then next_billing_date, then expires_at.
func (d *SubscriptionData) PeriodEnd() *time.Time {
	return firstNonNilTime(d.CurrentPeriodEnd, d.NextBillingDate, d.ExpiresAt)
}

// CancellationTime resolves the cancellation timestamp across the two
// spellings the provider has used.
func (d *SubscriptionData) CancellationTime() *time.Time {
	return firstNonNilTime(d.CancelledAt, d.CanceledAt)
}

func (d *PaymentData) ResolveCustomerID() string {
	return firstNonEmpty(d.Customer.CustomerID, d.Customer.ID, d.CustomerID)
}

func (d *PaymentData) ResolveEmail() string {
	return firstNonEmpty(d.Customer.Email, d.Email)
}

// ResolveAmount returns the payment amount in the smallest currency unit,
// preferring total_amount over amount.
func (d *PaymentData) ResolveAmount() int64 {
	if d.TotalAmount != nil {
		return *d.TotalAmount
	}
	if d.Amount != nil {
		return *d.Amount
	}
	return 0
}

func (d *CustomerData) ResolveCustomerID() string {
	return firstNonEmpty(d.CustomerID, d.ID)
}
