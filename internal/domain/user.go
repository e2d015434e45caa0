package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User types mirror the platform roles: investors buy tokens, developers
// publish projects, admins may act on anyone's listings and portfolios.
const (
	UserTypeInvestor  = "investor"
	UserTypeDeveloper = "developer"
	UserTypeAdmin     = "admin"
)

// User is an account on the platform.
type User struct {
	UserID        uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey" json:"id"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	Email         string         `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash  string         `gorm:"column:password_hash;not null" json:"-"`
	UserType      string         `gorm:"column:user_type;type:varchar(20);not null;default:investor" json:"userType"`
	WalletAddress *string        `gorm:"column:wallet_address" json:"walletAddress,omitempty"`
	IsActive      bool           `gorm:"column:is_active;not null;default:true" json:"isActive"`
	LastLogin     *time.Time     `gorm:"column:last_login" json:"lastLogin,omitempty"`
	CreatedAt     time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "Users"
}

// BeforeCreate sets user_id for DBs without default uuid.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

// UserSummary is the projection embedded in listings and portfolios.
// Credential fields are never part of this shape.
type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Summary returns the public projection of a user.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.UserID, Name: u.Name, Email: u.Email}
}

// IsAdmin reports whether the user may act on other users' resources.
func (u *User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}
