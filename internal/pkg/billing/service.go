package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hidemybrowser/billingd/app/models"
)

// AccessInvalidator drops a user's cached access status. Invalidation is a
// best-effort hook: the service logs a failed call and moves on, because a
// stale entry expires on its own TTL and must never fail an event.
type AccessInvalidator interface {
	Invalidate(userID string) error
}

// Service applies webhook events to the billing store. It owns the transition
// logic only; durability lives in the injected Repository and the cache is an
// injected collaborator, never a hidden global.
type Service struct {
	repo  Repository
	cache AccessInvalidator
}

// NewService creates a webhook service from an injected repository and cache.
func NewService(repo Repository, cache AccessInvalidator) *Service {
	return &Service{repo: repo, cache: cache}
}

// NewServiceFromDB creates a webhook service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cache AccessInvalidator) *Service {
	return NewService(NewRepository(db), cache)
}

// RecordWebhookEvent persists an inbound event idempotently. Redeliveries of a
// known event id return the stored row untouched. Events that somehow arrive
// without any id are keyed by a payload hash so they still dedupe.
func (s *Service) RecordWebhookEvent(eventID, eventType string, payload []byte) (*models.WebhookEvent, error) {
	id := strings.TrimSpace(eventID)
	if id == "" {
		sum := sha256.Sum256(payload)
		id = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		EventID:     id,
		EventType:   strings.TrimSpace(eventType),
		PayloadJSON: string(payload),
	}
	_, stored, err := s.repo.CreateWebhookEventIfNotExists(event)
	return stored, err
}

// IsAlreadyProcessed reports whether an event completed processing in a prior
// delivery. This check is the idempotency boundary: callers must skip all
// handler logic when it returns true.
func (s *Service) IsAlreadyProcessed(eventID string) (bool, error) {
	event, err := s.repo.GetWebhookEvent(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return event.Processed, nil
}

// MarkEventProcessed flags the ledger row processed and clears any prior error.
func (s *Service) MarkEventProcessed(eventID string) error {
	return s.repo.MarkWebhookProcessed(eventID)
}

// MarkEventFailed records a processing failure on the ledger row.
func (s *Service) MarkEventFailed(eventID string, processingErr error) error {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	return s.repo.MarkWebhookFailed(eventID, msg)
}

// ResetEventForRetry clears the processed flag and error so the next delivery
// or sweep reprocesses the event. Operator tooling only.
func (s *Service) ResetEventForRetry(eventID string) error {
	if _, err := s.repo.GetWebhookEvent(eventID); err != nil {
		return err
	}
	return s.repo.ResetWebhookForRetry(eventID)
}

// RecentEvents returns the newest ledger rows for operator inspection.
func (s *Service) RecentEvents(limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRecentWebhookEvents(limit)
}

// resolveCustomer maps an event's customer reference to a local Customer row:
//  1. lookup by provider customer id
//  2. lookup by email
//  3. backfill a missing provider id onto an email match (best-effort)
//  4. auto-provision from the application user directory by email
//
// Returns (nil, nil) when no path resolves; a reference that does not exist
// will not start existing on retry, so callers treat that as a logged no-op
// rather than clogging the retry queue.
func (s *Service) resolveCustomer(providerCustomerID, email string) (*models.Customer, error) {
	providerCustomerID = strings.TrimSpace(providerCustomerID)
	email = strings.TrimSpace(email)

	if providerCustomerID != "" {
		customer, err := s.repo.GetCustomerByProviderID(providerCustomerID)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if email == "" {
		return nil, nil
	}

	customer, err := s.repo.GetCustomerByEmail(email)
	if err == nil {
		if customer.DodoCustomerID == "" && providerCustomerID != "" {
			if err := s.repo.SetCustomerProviderID(customer.ID, providerCustomerID); err != nil {
				log.Warnf("[Billing] failed to backfill provider customer id onto customer %d: %v", customer.ID, err)
			} else {
				customer.DodoCustomerID = providerCustomerID
			}
		}
		return customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// No customer record yet; bind a new one to a matching application user.
	user, err := s.repo.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	created := &models.Customer{
		UserID:         user.ID,
		DodoCustomerID: providerCustomerID,
		Email:          email,
	}
	if err := s.repo.CreateCustomer(created); err != nil {
		return nil, err
	}
	log.Infof("[Billing] auto-provisioned customer for user %s (email %s)", user.ID, email)
	return created, nil
}

// invalidateAccess drops the user's cached access status. Failures are logged
// and swallowed.
func (s *Service) invalidateAccess(userID string) {
	if s.cache == nil || userID == "" {
		return
	}
	if err := s.cache.Invalidate(userID); err != nil {
		log.Warnf("[Billing] access-status cache invalidation failed for user %s: %v", userID, err)
	}
}
