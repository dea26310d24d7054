package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity row owned by the auth service. This service only reads it.
type User struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Username  string    `gorm:"column:username;not null;uniqueIndex"`
	Email     string    `gorm:"column:email;not null;uniqueIndex"`
	IsAdmin   bool      `gorm:"column:is_admin;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
