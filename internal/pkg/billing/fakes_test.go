package billing

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/hidemybrowser/billingd/app/models"
)

// fakeRepository is an in-memory Repository for handler and sweep tests. Write
// methods count their calls so tests can assert on no-op paths, and failures
// can be injected per method name.
type fakeRepository struct {
	events        map[string]models.WebhookEvent
	retries       map[string]models.RetryQueueItem
	subscriptions map[string]models.Subscription
	payments      map[string]models.Payment
	customers     map[uint]models.Customer
	users         map[string]models.User

	failures map[string]error
	nextID   uint

	createEventCalls      int
	markProcessedCalls    int
	markFailedCalls       int
	saveRetryCalls        int
	deleteRetryCalls      int
	upsertSubCalls        int
	saveSubscriptionCalls int
	upsertPaymentCalls    int
	createCustomerCalls   int
	upsertCustomerCalls   int
	setProviderIDCalls    int
}

var _ Repository = (*fakeRepository)(nil)

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		events:        make(map[string]models.WebhookEvent),
		retries:       make(map[string]models.RetryQueueItem),
		subscriptions: make(map[string]models.Subscription),
		payments:      make(map[string]models.Payment),
		customers:     make(map[uint]models.Customer),
		users:         make(map[string]models.User),
		failures:      make(map[string]error),
	}
}

func (f *fakeRepository) fail(method string) error {
	return f.failures[method]
}

func (f *fakeRepository) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepository) writeCalls() int {
	return f.createEventCalls + f.markProcessedCalls + f.markFailedCalls +
		f.saveRetryCalls + f.deleteRetryCalls + f.upsertSubCalls +
		f.saveSubscriptionCalls + f.upsertPaymentCalls +
		f.createCustomerCalls + f.upsertCustomerCalls + f.setProviderIDCalls
}

func (f *fakeRepository) addUser(id, email string) {
	f.users[email] = models.User{ID: id, Email: email, Status: models.STATUS_ACTIVE}
}

func (f *fakeRepository) addCustomer(userID, dodoCustomerID, email string) models.Customer {
	c := models.Customer{ID: f.id(), UserID: userID, DodoCustomerID: dodoCustomerID, Email: email}
	f.customers[c.ID] = c
	return c
}

func (f *fakeRepository) addSubscription(sub models.Subscription) models.Subscription {
	if sub.ID == 0 {
		sub.ID = f.id()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	f.subscriptions[sub.DodoSubscriptionID] = sub
	return sub
}

func (f *fakeRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if err := f.fail("CreateWebhookEventIfNotExists"); err != nil {
		return false, nil, err
	}
	f.createEventCalls++
	if stored, ok := f.events[event.EventID]; ok {
		return false, &stored, nil
	}
	event.ID = f.id()
	event.CreatedAt = time.Now()
	f.events[event.EventID] = *event
	stored := f.events[event.EventID]
	return true, &stored, nil
}

func (f *fakeRepository) GetWebhookEvent(eventID string) (*models.WebhookEvent, error) {
	if err := f.fail("GetWebhookEvent"); err != nil {
		return nil, err
	}
	event, ok := f.events[eventID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &event, nil
}

func (f *fakeRepository) MarkWebhookProcessed(eventID string) error {
	if err := f.fail("MarkWebhookProcessed"); err != nil {
		return err
	}
	f.markProcessedCalls++
	event, ok := f.events[eventID]
	if !ok {
		return nil
	}
	event.Processed = true
	event.ErrorMessage = ""
	f.events[eventID] = event
	return nil
}

func (f *fakeRepository) MarkWebhookFailed(eventID, errorMessage string) error {
	if err := f.fail("MarkWebhookFailed"); err != nil {
		return err
	}
	f.markFailedCalls++
	event, ok := f.events[eventID]
	if !ok {
		return nil
	}
	event.Processed = false
	event.ErrorMessage = errorMessage
	f.events[eventID] = event
	return nil
}

func (f *fakeRepository) ResetWebhookForRetry(eventID string) error {
	event, ok := f.events[eventID]
	if !ok {
		return nil
	}
	event.Processed = false
	event.ErrorMessage = ""
	f.events[eventID] = event
	return nil
}

func (f *fakeRepository) ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	events := make([]models.WebhookEvent, 0, len(f.events))
	for _, e := range f.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (f *fakeRepository) GetRetryItem(eventID string) (*models.RetryQueueItem, error) {
	if err := f.fail("GetRetryItem"); err != nil {
		return nil, err
	}
	item, ok := f.retries[eventID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &item, nil
}

func (f *fakeRepository) SaveRetryItem(item *models.RetryQueueItem) error {
	if err := f.fail("SaveRetryItem"); err != nil {
		return err
	}
	f.saveRetryCalls++
	if item.ID == 0 {
		if existing, ok := f.retries[item.EventID]; ok {
			item.ID = existing.ID
		} else {
			item.ID = f.id()
		}
	}
	f.retries[item.EventID] = *item
	return nil
}

func (f *fakeRepository) DeleteRetryItem(eventID string) error {
	if err := f.fail("DeleteRetryItem"); err != nil {
		return err
	}
	f.deleteRetryCalls++
	delete(f.retries, eventID)
	return nil
}

func (f *fakeRepository) ListDueRetryItems(now time.Time, limit int) ([]models.RetryQueueItem, error) {
	var due []models.RetryQueueItem
	for _, item := range f.retries {
		if item.NextRetryAt != nil && !item.NextRetryAt.After(now) {
			due = append(due, item)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := f.fail("UpsertSubscription"); err != nil {
		return err
	}
	f.upsertSubCalls++
	if existing, ok := f.subscriptions[sub.DodoSubscriptionID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		// Grace-period columns are excluded from the upsert assignment list.
		sub.PaymentFailureCount = existing.PaymentFailureCount
		sub.NextPaymentRetryAt = existing.NextPaymentRetryAt
		sub.GracePeriodEndsAt = existing.GracePeriodEndsAt
	} else {
		sub.ID = f.id()
		sub.CreatedAt = time.Now()
	}
	f.subscriptions[sub.DodoSubscriptionID] = *sub
	return nil
}

func (f *fakeRepository) GetSubscriptionByProviderID(dodoSubscriptionID string) (*models.Subscription, error) {
	if err := f.fail("GetSubscriptionByProviderID"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[dodoSubscriptionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (f *fakeRepository) SaveSubscription(sub *models.Subscription) error {
	if err := f.fail("SaveSubscription"); err != nil {
		return err
	}
	f.saveSubscriptionCalls++
	f.subscriptions[sub.DodoSubscriptionID] = *sub
	return nil
}

func (f *fakeRepository) GetLatestSubscriptionByUser(userID string) (*models.Subscription, error) {
	if err := f.fail("GetLatestSubscriptionByUser"); err != nil {
		return nil, err
	}
	var latest *models.Subscription
	for key := range f.subscriptions {
		sub := f.subscriptions[key]
		if sub.UserID != userID {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = &sub
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (f *fakeRepository) ListDuePaymentRetries(now time.Time, limit int) ([]models.Subscription, error) {
	var due []models.Subscription
	for _, sub := range f.subscriptions {
		if sub.Status == models.SubscriptionStatusSuspended {
			continue
		}
		if sub.NextPaymentRetryAt != nil && !sub.NextPaymentRetryAt.After(now) {
			due = append(due, sub)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextPaymentRetryAt.Before(*due[j].NextPaymentRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeRepository) UpsertPayment(payment *models.Payment) error {
	if err := f.fail("UpsertPayment"); err != nil {
		return err
	}
	f.upsertPaymentCalls++
	if existing, ok := f.payments[payment.DodoPaymentID]; ok {
		payment.ID = existing.ID
		payment.CreatedAt = existing.CreatedAt
	} else {
		payment.ID = f.id()
		payment.CreatedAt = time.Now()
	}
	f.payments[payment.DodoPaymentID] = *payment
	return nil
}

func (f *fakeRepository) GetCustomerByProviderID(dodoCustomerID string) (*models.Customer, error) {
	if err := f.fail("GetCustomerByProviderID"); err != nil {
		return nil, err
	}
	for id := range f.customers {
		c := f.customers[id]
		if c.DodoCustomerID == dodoCustomerID {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) GetCustomerByEmail(email string) (*models.Customer, error) {
	if err := f.fail("GetCustomerByEmail"); err != nil {
		return nil, err
	}
	for id := range f.customers {
		c := f.customers[id]
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) CreateCustomer(customer *models.Customer) error {
	if err := f.fail("CreateCustomer"); err != nil {
		return err
	}
	f.createCustomerCalls++
	customer.ID = f.id()
	f.customers[customer.ID] = *customer
	return nil
}

func (f *fakeRepository) SetCustomerProviderID(customerID uint, dodoCustomerID string) error {
	if err := f.fail("SetCustomerProviderID"); err != nil {
		return err
	}
	f.setProviderIDCalls++
	c, ok := f.customers[customerID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.DodoCustomerID = dodoCustomerID
	f.customers[customerID] = c
	return nil
}

func (f *fakeRepository) UpsertCustomer(customer *models.Customer) error {
	if err := f.fail("UpsertCustomer"); err != nil {
		return err
	}
	f.upsertCustomerCalls++
	for id := range f.customers {
		existing := f.customers[id]
		if existing.UserID == customer.UserID {
			customer.ID = existing.ID
			f.customers[customer.ID] = *customer
			return nil
		}
	}
	customer.ID = f.id()
	f.customers[customer.ID] = *customer
	return nil
}

func (f *fakeRepository) GetUserByEmail(email string) (*models.User, error) {
	if err := f.fail("GetUserByEmail"); err != nil {
		return nil, err
	}
	user, ok := f.users[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

// fakeInvalidator records access-status invalidations.
type fakeInvalidator struct {
	userIDs []string
	err     error
}

func (f *fakeInvalidator) Invalidate(userID string) error {
	f.userIDs = append(f.userIDs, userID)
	return f.err
}
