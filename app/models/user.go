package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User is the local mirror of the application user directory. The webhook
// handlers only read it to auto-provision customer records by email; account
// lifecycle is owned by the auth platform.
type User struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id" validate:"required,uuid4"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Name      string    `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Status    string    `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}
