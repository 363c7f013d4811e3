package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hidemybrowser/billingd/app/models"
)

const (
	// RetrySweepBatchSize caps how many due retry items one sweep handles.
	RetrySweepBatchSize = 100
	// GraceSweepBatchSize caps how many due grace-period rows one sweep handles.
	GraceSweepBatchSize = 100
)

// backoffDelay computes the exponential delay for a retry attempt:
// 2^retryCount seconds, so 2s, 4s, 8s for attempts 1..3.
func backoffDelay(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount)) * time.Second
}

// ScheduleRetry records a processing failure in the retry queue. The retry
// count is capped at max_retries; once the cap was already reached on a prior
// failure, next_retry_at is cleared and the row is left for operator
// visibility instead of being rescheduled.
func (s *Service) ScheduleRetry(eventID, lastError string) (*models.RetryQueueItem, error) {
	item, err := s.repo.GetRetryItem(eventID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load retry item for event %s: %w", eventID, err)
		}
		item = &models.RetryQueueItem{
			EventID:    eventID,
			MaxRetries: models.DefaultMaxRetries,
		}
	}

	advanceRetryBackoff(item, lastError, time.Now())

	if err := s.repo.SaveRetryItem(item); err != nil {
		return nil, fmt.Errorf("save retry item for event %s: %w", eventID, err)
	}
	return item, nil
}

// advanceRetryBackoff applies one failure to a retry item. Shared between the
// delivery path and the sweep so both advance identically.
func advanceRetryBackoff(item *models.RetryQueueItem, lastError string, now time.Time) {
	exhausted := item.Exhausted()
	if !exhausted {
		item.RetryCount++
	}
	if lastError != "" {
		item.LastError = lastError
	}
	if exhausted {
		item.NextRetryAt = nil
		return
	}
	next := now.Add(backoffDelay(item.RetryCount))
	item.NextRetryAt = &next
}

// RetrySweepResult summarizes one retry-queue sweep for logging/response.
type RetrySweepResult struct {
	Scanned     int `json:"scanned"`
	Cleaned     int `json:"cleaned"`
	Rescheduled int `json:"rescheduled"`
	Exhausted   int `json:"exhausted"`
	Errors      int `json:"errors"`
}

// SweepRetryQueue drains due retry items in one bounded batch. Items whose
// event has since been processed are deleted. The rest only get their backoff
// bookkeeping advanced; the provider's own redelivery performs the real
// retry, so no handler is re-invoked here. A failure on one item is recorded
// onto that item and never aborts the batch.
func (s *Service) SweepRetryQueue(now time.Time) (RetrySweepResult, error) {
	var result RetrySweepResult

	items, err := s.repo.ListDueRetryItems(now, RetrySweepBatchSize)
	if err != nil {
		return result, fmt.Errorf("list due retry items: %w", err)
	}
	result.Scanned = len(items)

	for i := range items {
		item := &items[i]
		if err := s.sweepRetryItem(item, now, &result); err != nil {
			result.Errors++
			log.Errorf("[Billing] retry sweep failed for event %s: %v", item.EventID, err)
			item.LastError = err.Error()
			if saveErr := s.repo.SaveRetryItem(item); saveErr != nil {
				log.Errorf("[Billing] could not record sweep error for event %s: %v", item.EventID, saveErr)
			}
		}
	}
	return result, nil
}

func (s *Service) sweepRetryItem(item *models.RetryQueueItem, now time.Time, result *RetrySweepResult) error {
	event, err := s.repo.GetWebhookEvent(item.EventID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load ledger row: %w", err)
	}

	if event != nil && event.Processed {
		if err := s.repo.DeleteRetryItem(item.EventID); err != nil {
			return fmt.Errorf("delete completed retry item: %w", err)
		}
		result.Cleaned++
		return nil
	}

	advanceRetryBackoff(item, "", now)
	if err := s.repo.SaveRetryItem(item); err != nil {
		return fmt.Errorf("save retry item: %w", err)
	}
	if item.NextRetryAt == nil {
		result.Exhausted++
		log.Warnf("[Billing] event %s exhausted its %d retries, needs operator attention",
			item.EventID, item.MaxRetries)
	} else {
		result.Rescheduled++
	}
	return nil
}

// GraceSweepResult summarizes one grace-period enforcement sweep.
type GraceSweepResult struct {
	Scanned     int `json:"scanned"`
	Rescheduled int `json:"rescheduled"`
	Suspended   int `json:"suspended"`
	Errors      int `json:"errors"`
}

// SweepPaymentRetries enforces the grace-period policy on subscriptions with
// an overdue payment retry: the first due check reschedules 48h out, the
// second suspends the subscription. A settled payment clears this state
// before it ever comes due (see handlePaymentSucceeded).
func (s *Service) SweepPaymentRetries(now time.Time) (GraceSweepResult, error) {
	var result GraceSweepResult

	subs, err := s.repo.ListDuePaymentRetries(now, GraceSweepBatchSize)
	if err != nil {
		return result, fmt.Errorf("list due payment retries: %w", err)
	}
	result.Scanned = len(subs)

	for i := range subs {
		sub := &subs[i]

		if sub.PaymentFailureCount <= 1 {
			sub.PaymentFailureCount = 2
			next := now.Add(secondPaymentRetryDelay)
			sub.NextPaymentRetryAt = &next
			if err := s.repo.SaveSubscription(sub); err != nil {
				result.Errors++
				log.Errorf("[Billing] grace sweep failed for subscription %s: %v", sub.DodoSubscriptionID, err)
				continue
			}
			result.Rescheduled++
			continue
		}

		sub.Status = models.SubscriptionStatusSuspended
		sub.NextPaymentRetryAt = nil
		if err := s.repo.SaveSubscription(sub); err != nil {
			result.Errors++
			log.Errorf("[Billing] grace sweep failed for subscription %s: %v", sub.DodoSubscriptionID, err)
			continue
		}
		result.Suspended++
		s.invalidateAccess(sub.UserID)
		log.Warnf("[Billing] subscription %s suspended after exhausted payment retries", sub.DodoSubscriptionID)
	}
	return result, nil
}
