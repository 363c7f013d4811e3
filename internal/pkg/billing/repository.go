package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hidemybrowser/billingd/app/models"
)

// Repository provides the store operations used by the webhook pipeline. The
// pipeline needs no transactions or joins; per-row atomic upserts and point
// lookups are the whole contract.
type Repository interface {
	// Event ledger
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	GetWebhookEvent(eventID string) (*models.WebhookEvent, error)
	MarkWebhookProcessed(eventID string) error
	MarkWebhookFailed(eventID, errorMessage string) error
	ResetWebhookForRetry(eventID string) error
	ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error)

	// Retry queue
	GetRetryItem(eventID string) (*models.RetryQueueItem, error)
	SaveRetryItem(item *models.RetryQueueItem) error
	DeleteRetryItem(eventID string) error
	ListDueRetryItems(now time.Time, limit int) ([]models.RetryQueueItem, error)

	// Subscriptions
	UpsertSubscription(sub *models.Subscription) error
	GetSubscriptionByProviderID(dodoSubscriptionID string) (*models.Subscription, error)
	SaveSubscription(sub *models.Subscription) error
	GetLatestSubscriptionByUser(userID string) (*models.Subscription, error)
	ListDuePaymentRetries(now time.Time, limit int) ([]models.Subscription, error)

	// Payments
	UpsertPayment(payment *models.Payment) error

	// Customers and the application user directory
	GetCustomerByProviderID(dodoCustomerID string) (*models.Customer, error)
	GetCustomerByEmail(email string) (*models.Customer, error)
	CreateCustomer(customer *models.Customer) error
	SetCustomerProviderID(customerID uint, dodoCustomerID string) error
	UpsertCustomer(customer *models.Customer) error
	GetUserByEmail(email string) (*models.User, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetWebhookEvent(eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) MarkWebhookProcessed(eventID string) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed":     true,
			"error_message": "",
		}).Error
}

func (r *gormRepository) MarkWebhookFailed(eventID, errorMessage string) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed":     false,
			"error_message": errorMessage,
		}).Error
}

func (r *gormRepository) ResetWebhookForRetry(eventID string) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed":     false,
			"error_message": "",
		}).Error
}

func (r *gormRepository) ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

func (r *gormRepository) GetRetryItem(eventID string) (*models.RetryQueueItem, error) {
	var item models.RetryQueueItem
	if err := r.db.Where("event_id = ?", eventID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *gormRepository) SaveRetryItem(item *models.RetryQueueItem) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"retry_count",
			"max_retries",
			"next_retry_at",
			"last_error",
			"updated_at",
		}),
	}).Create(item).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("event_id = ?", item.EventID).First(item).Error
}

func (r *gormRepository) DeleteRetryItem(eventID string) error {
	return r.db.Where("event_id = ?", eventID).Delete(&models.RetryQueueItem{}).Error
}

func (r *gormRepository) ListDueRetryItems(now time.Time, limit int) ([]models.RetryQueueItem, error) {
	var items []models.RetryQueueItem
	err := r.db.
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dodo_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"status",
			"product_id",
			"current_period_start",
			"current_period_end",
			"cancel_at_next_billing",
			"canceled_at",
			"trial_start",
			"trial_end",
			"metadata_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	return r.db.Where("dodo_subscription_id = ?", sub.DodoSubscriptionID).First(sub).Error
}

func (r *gormRepository) GetSubscriptionByProviderID(dodoSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("dodo_subscription_id = ?", dodoSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) GetLatestSubscriptionByUser(userID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListDuePaymentRetries(now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("next_payment_retry_at IS NOT NULL AND next_payment_retry_at <= ? AND status <> ?",
			now, models.SubscriptionStatusSuspended).
		Order("next_payment_retry_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) UpsertPayment(payment *models.Payment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dodo_payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"amount",
			"currency",
			"status",
			"metadata_json",
			"updated_at",
		}),
	}).Create(payment).Error; err != nil {
		return err
	}

	return r.db.Where("dodo_payment_id = ?", payment.DodoPaymentID).First(payment).Error
}

func (r *gormRepository) GetCustomerByProviderID(dodoCustomerID string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("dodo_customer_id = ?", dodoCustomerID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) GetCustomerByEmail(email string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("email = ?", email).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) CreateCustomer(customer *models.Customer) error {
	return r.db.Create(customer).Error
}

func (r *gormRepository) SetCustomerProviderID(customerID uint, dodoCustomerID string) error {
	return r.db.Model(&models.Customer{}).
		Where("id = ?", customerID).
		Update("dodo_customer_id", dodoCustomerID).Error
}

func (r *gormRepository) UpsertCustomer(customer *models.Customer) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"dodo_customer_id",
			"email",
			"updated_at",
		}),
	}).Create(customer).Error; err != nil {
		return err
	}

	return r.db.Where("user_id = ?", customer.UserID).First(customer).Error
}

func (r *gormRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
