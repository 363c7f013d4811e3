package models

import "time"

const DefaultMaxRetries = 3

// RetryQueueItem tracks local backoff bookkeeping for a failed webhook event.
// At most one row exists per event id. next_retry_at = NULL means retries are
// exhausted (or the row is frozen for operator inspection).
type RetryQueueItem struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EventID     string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_retry_queue_event_id" json:"event_id"`
	RetryCount  int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries  int        `gorm:"not null;default:3" json:"max_retries"`
	NextRetryAt *time.Time `gorm:"type:timestamp;default:null;index" json:"next_retry_at,omitempty"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Exhausted reports whether the item has used up its retry budget.
func (r *RetryQueueItem) Exhausted() bool {
	return r.RetryCount >= r.MaxRetries
}
