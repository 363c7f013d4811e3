package models

import "time"

// WebhookEvent stores every inbound provider event keyed by the provider's
// event id. The unique index on event_id is the idempotency boundary for
// redeliveries.
type WebhookEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EventID      string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_event_id" json:"event_id"`
	EventType    string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON  string    `gorm:"type:longtext;not null" json:"payload_json"`
	Processed    bool      `gorm:"default:false;index" json:"processed"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
