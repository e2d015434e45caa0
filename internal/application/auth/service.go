package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tessera-backend/internal/domain"
	"tessera-backend/internal/pkg/apperr"
	"tessera-backend/internal/pkg/validation"
)

// Service handles registration and credential verification. Session
// issuance itself lives in the handlers plus the session middleware.
type Service struct {
	DB *gorm.DB
}

// RegisterInput for the register request body.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"userType"`
}

// Register creates a new user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("Name, email and password are required")
	}
	if !validation.IsValidEmail(in.Email) {
		return nil, apperr.Validation("Invalid email")
	}
	if !validation.IsValidPassword(in.Password) {
		return nil, apperr.Validation("Password must be at least 6 characters")
	}
	userType := in.UserType
	if userType == "" {
		userType = domain.UserTypeInvestor
	}
	// Admin accounts are provisioned out of band, never via registration.
	if userType != domain.UserTypeInvestor && userType != domain.UserTypeDeveloper {
		return nil, apperr.Validation("Invalid user type")
	}

	var existing domain.User
	err := s.DB.WithContext(ctx).Where("email = ?", in.Email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		UserType:     userType,
		IsActive:     true,
	}
	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// LoginInput for the login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login finds the user by email and verifies the password.
func (s *Service) Login(ctx context.Context, in LoginInput) (*domain.User, error) {
	if in.Email == "" || in.Password == "" {
		return nil, ErrEmailPasswordRequired
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", in.Email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrAccountDeactivated
	}
	now := time.Now()
	s.DB.WithContext(ctx).Model(&u).Update("last_login", now)
	u.LastLogin = &now
	return &u, nil
}

// GetUser loads a user by id for /me.
func (s *Service) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return &u, nil
}
