package models

import "time"

// Customer links an application user to their DodoPayments customer identity.
// It is the join key between provider events (which carry a provider customer
// id and/or an email) and application users.
type Customer struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"type:char(36);not null;uniqueIndex:ux_customers_user_id" json:"user_id"`
	DodoCustomerID string    `gorm:"type:varchar(191);index:idx_customers_dodo_customer_id" json:"dodo_customer_id"`
	Email          string    `gorm:"type:varchar(200);not null;index" json:"email"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
