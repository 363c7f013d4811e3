package models

import "time"

const (
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
)

// Payment mirrors a DodoPayments payment, keyed by the provider's payment id.
type Payment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"type:char(36);not null;index" json:"user_id"`
	DodoPaymentID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_dodo_payment_id" json:"dodo_payment_id"`
	Amount        int64     `gorm:"not null;default:0" json:"amount"`
	Currency      string    `gorm:"type:varchar(8);not null;default:'USD'" json:"currency"`
	Status        string    `gorm:"type:varchar(32);not null;default:'processing';index" json:"status"`
	MetadataJSON  string    `gorm:"type:longtext" json:"metadata_json"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
