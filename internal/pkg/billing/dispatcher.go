package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hidemybrowser/billingd/app/models"
)

// Grace-period policy applied to failed payments: first retry after 24h,
// second after 48h, then the subscription is suspended by the grace sweep.
const (
	firstPaymentRetryDelay  = 24 * time.Hour
	secondPaymentRetryDelay = 48 * time.Hour
	gracePeriodWindow       = firstPaymentRetryDelay + secondPaymentRetryDelay
)

// ProcessEvent routes a verified, not-yet-processed event to its handler.
// Unrecognized event types are acknowledged as no-ops so the provider stops
// redelivering them. Any returned error means the caller must record the
// failure on the ledger and enqueue a retry.
func (s *Service) ProcessEvent(env *EventEnvelope) error {
	switch env.Type {
	case EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionActive,
		EventSubscriptionRenewed,
		EventSubscriptionPlanChanged:
		return s.handleSubscriptionUpsert(env)

	case EventSubscriptionOnHold:
		return s.handleSubscriptionTransition(env, models.SubscriptionStatusOnHold)
	case EventSubscriptionCanceled:
		return s.handleSubscriptionTransition(env, models.SubscriptionStatusCanceled)
	case EventSubscriptionExpired:
		return s.handleSubscriptionTransition(env, models.SubscriptionStatusExpired)
	case EventSubscriptionFailed:
		return s.handleSubscriptionTransition(env, models.SubscriptionStatusFailed)

	case EventPaymentSucceeded:
		return s.handlePaymentSucceeded(env)
	case EventPaymentProcessing:
		return s.handlePaymentStatus(env, models.PaymentStatusProcessing)
	case EventPaymentFailed:
		return s.handlePaymentFailed(env)
	case EventPaymentCancelled:
		return s.handlePaymentStatus(env, models.PaymentStatusCancelled)

	case EventCustomerCreated, EventCustomerUpdated:
		return s.handleCustomerSync(env)

	default:
		log.Infof("[Billing] ignoring unrecognized event type %s (event %s)", env.Type, env.EventID)
		return nil
	}
}

// handleSubscriptionUpsert applies subscription lifecycle events that carry
// the full subscription state (created/updated/active/renewed/plan_changed).
func (s *Service) handleSubscriptionUpsert(env *EventEnvelope) error {
	var data SubscriptionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode subscription payload: %w", err)
	}
	if data.SubscriptionID == "" {
		return fmt.Errorf("subscription event %s carries no subscription_id", env.EventID)
	}

	customer, err := s.resolveCustomer(data.ResolveCustomerID(), data.ResolveEmail())
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}
	if customer == nil {
		log.Warnf("[Billing] no resolvable customer for subscription event %s (subscription %s), skipping",
			env.EventID, data.SubscriptionID)
		return nil
	}

	metadataJSON := ""
	if len(data.Metadata) > 0 {
		if b, err := json.Marshal(data.Metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	sub := &models.Subscription{
		UserID:              customer.UserID,
		DodoSubscriptionID:  data.SubscriptionID,
		Status:              normalizeSubscriptionStatus(data.Status),
		ProductID:           data.ProductID,
		CurrentPeriodStart:  data.PeriodStart(),
		CurrentPeriodEnd:    data.PeriodEnd(),
		CancelAtNextBilling: data.CancelAtNextBillingDate,
		CanceledAt:          data.CancellationTime(),
		TrialStart:          data.TrialStart,
		TrialEnd:            data.TrialEnd,
		MetadataJSON:        metadataJSON,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", data.SubscriptionID, err)
	}

	s.invalidateAccess(customer.UserID)
	return nil
}

// handleSubscriptionTransition applies lifecycle events that only move an
// existing subscription to a terminal-ish status. A missing row or an equal
// status is a no-op; retrying either would change nothing.
func (s *Service) handleSubscriptionTransition(env *EventEnvelope, targetStatus string) error {
	var data SubscriptionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode subscription payload: %w", err)
	}
	if data.SubscriptionID == "" {
		return fmt.Errorf("subscription event %s carries no subscription_id", env.EventID)
	}

	sub, err := s.repo.GetSubscriptionByProviderID(data.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] event %s targets unknown subscription %s, skipping",
				env.EventID, data.SubscriptionID)
			return nil
		}
		return fmt.Errorf("load subscription %s: %w", data.SubscriptionID, err)
	}

	if sub.Status == targetStatus {
		return nil
	}

	sub.Status = targetStatus
	if targetStatus == models.SubscriptionStatusCanceled && sub.CanceledAt == nil {
		canceledAt := time.Now()
		if t := data.CancellationTime(); t != nil {
			canceledAt = *t
		}
		sub.CanceledAt = &canceledAt
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("transition subscription %s to %s: %w", data.SubscriptionID, targetStatus, err)
	}

	s.invalidateAccess(sub.UserID)
	return nil
}

// handlePaymentSucceeded settles a payment and resolves any in-flight
// grace-period bookkeeping on the user's most recent subscription.
func (s *Service) handlePaymentSucceeded(env *EventEnvelope) error {
	var data PaymentData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode payment payload: %w", err)
	}
	if data.PaymentID == "" {
		return fmt.Errorf("payment event %s carries no payment_id", env.EventID)
	}

	customer, err := s.resolveCustomer(data.ResolveCustomerID(), data.ResolveEmail())
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}
	if customer == nil {
		// Distinct from the subscription skip: an unattributable settled
		// payment means revenue we cannot account for.
		log.Errorf("[Billing] settled payment %s (event %s) has no resolvable customer; revenue untracked",
			data.PaymentID, env.EventID)
		return nil
	}

	if err := s.upsertPaymentRow(&data, customer.UserID, models.PaymentStatusSucceeded); err != nil {
		return err
	}

	sub, err := s.repo.GetLatestSubscriptionByUser(customer.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load latest subscription for user %s: %w", customer.UserID, err)
	}
	if sub != nil && paymentResolvesGrace(sub) {
		sub.Status = models.SubscriptionStatusActive
		sub.PaymentFailureCount = 0
		sub.NextPaymentRetryAt = nil
		sub.GracePeriodEndsAt = nil
		if err := s.repo.SaveSubscription(sub); err != nil {
			return fmt.Errorf("clear grace state on subscription %s: %w", sub.DodoSubscriptionID, err)
		}
	}

	s.invalidateAccess(customer.UserID)
	return nil
}

// handlePaymentFailed records the failed payment and seeds the grace-period
// state machine on the user's most recent subscription.
func (s *Service) handlePaymentFailed(env *EventEnvelope) error {
	var data PaymentData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode payment payload: %w", err)
	}
	if data.PaymentID == "" {
		return fmt.Errorf("payment event %s carries no payment_id", env.EventID)
	}

	customer, err := s.resolveCustomer(data.ResolveCustomerID(), data.ResolveEmail())
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}
	if customer == nil {
		return nil
	}

	if err := s.upsertPaymentRow(&data, customer.UserID, models.PaymentStatusFailed); err != nil {
		return err
	}

	sub, err := s.repo.GetLatestSubscriptionByUser(customer.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load latest subscription for user %s: %w", customer.UserID, err)
	}
	if sub.PaymentFailureCount == 0 {
		now := time.Now()
		nextRetry := now.Add(firstPaymentRetryDelay)
		graceEnd := now.Add(gracePeriodWindow)
		sub.PaymentFailureCount = 1
		sub.NextPaymentRetryAt = &nextRetry
		sub.GracePeriodEndsAt = &graceEnd
		if err := s.repo.SaveSubscription(sub); err != nil {
			return fmt.Errorf("start grace period on subscription %s: %w", sub.DodoSubscriptionID, err)
		}
	}

	s.invalidateAccess(customer.UserID)
	return nil
}

// handlePaymentStatus upserts a payment row with a non-terminal status.
// Customer resolution failure is non-fatal here; there is nothing meaningful
// to persist without an owner.
func (s *Service) handlePaymentStatus(env *EventEnvelope, status string) error {
	var data PaymentData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode payment payload: %w", err)
	}
	if data.PaymentID == "" {
		return fmt.Errorf("payment event %s carries no payment_id", env.EventID)
	}

	customer, err := s.resolveCustomer(data.ResolveCustomerID(), data.ResolveEmail())
	if err != nil {
		return fmt.Errorf("resolve customer: %w", err)
	}
	if customer == nil {
		return nil
	}

	if err := s.upsertPaymentRow(&data, customer.UserID, status); err != nil {
		return err
	}

	s.invalidateAccess(customer.UserID)
	return nil
}

// handleCustomerSync upserts the Customer link row from customer lifecycle
// events. The owning user comes from event metadata or an email match against
// the application user directory.
func (s *Service) handleCustomerSync(env *EventEnvelope) error {
	var data CustomerData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode customer payload: %w", err)
	}

	userID := data.Metadata["user_id"]
	if userID == "" && data.Email != "" {
		user, err := s.repo.GetUserByEmail(data.Email)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup user by email: %w", err)
			}
		} else {
			userID = user.ID
		}
	}
	if userID == "" {
		log.Warnf("[Billing] customer event %s resolves to no application user, skipping", env.EventID)
		return nil
	}

	customer := &models.Customer{
		UserID:         userID,
		DodoCustomerID: data.ResolveCustomerID(),
		Email:          data.Email,
	}
	if err := s.repo.UpsertCustomer(customer); err != nil {
		return fmt.Errorf("upsert customer for user %s: %w", userID, err)
	}
	return nil
}

func (s *Service) upsertPaymentRow(data *PaymentData, userID, status string) error {
	metadataJSON := ""
	if len(data.Metadata) > 0 {
		if b, err := json.Marshal(data.Metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	payment := &models.Payment{
		UserID:        userID,
		DodoPaymentID: data.PaymentID,
		Amount:        data.ResolveAmount(),
		Currency:      normalizeCurrency(data.Currency),
		Status:        status,
		MetadataJSON:  metadataJSON,
	}
	if err := s.repo.UpsertPayment(payment); err != nil {
		return fmt.Errorf("upsert payment %s: %w", data.PaymentID, err)
	}
	return nil
}

// paymentResolvesGrace reports whether a settled payment should restore the
// subscription: either grace bookkeeping is in flight or the status reflects
// a payment problem.
func paymentResolvesGrace(sub *models.Subscription) bool {
	if sub.PaymentFailureCount > 0 || sub.NextPaymentRetryAt != nil || sub.GracePeriodEndsAt != nil {
		return true
	}
	switch sub.Status {
	case models.SubscriptionStatusOnHold,
		models.SubscriptionStatusSuspended,
		models.SubscriptionStatusFailed:
		return true
	}
	return false
}

func normalizeSubscriptionStatus(status string) string {
	switch status {
	case models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusRenewed,
		models.SubscriptionStatusSuspended,
		models.SubscriptionStatusOnHold,
		models.SubscriptionStatusCanceled,
		models.SubscriptionStatusExpired,
		models.SubscriptionStatusFailed:
		return status
	default:
		return models.SubscriptionStatusActive
	}
}

func normalizeCurrency(currency string) string {
	if currency == "" {
		return "USD"
	}
	return currency
}
