package services

import (
	"errors"
	"strings"
	"time"

	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/internal/utils"
	"gorm.io/gorm"
)

// UserDirectory resolves invitation targets to accounts.
type UserDirectory interface {
	GetByID(id uint) (*models.User, error)
	FindByEmail(email string) (*models.User, error)
	FindByPhone(phone string) (*models.User, error)
}

// AuthService is the identity provider: accounts, password login and JWT sessions.
type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{
		db:        db,
		jwtConfig: jwtCfg,
	}
}

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrUserDisabled        = errors.New("user is disabled")
	ErrEmailTaken          = errors.New("email is already registered")
	ErrPhoneTaken          = errors.New("phone is already registered")
	ErrInvalidContact      = errors.New("invalid email or phone")
	ErrIncorrectPassword   = errors.New("incorrect old password")
	ErrInvalidVerification = errors.New("verification link is invalid or expired")
)

const emailVerificationHours = 48

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"max=100"`
	Phone    string `json:"phone" binding:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string       `json:"token"`
	User     *models.User `json:"user"`
	ExpireAt time.Time    `json:"expire_at"`
}

// Register creates a regular account. Email is stored lower-cased and phone
// in normalized form, both unique.
func (s *AuthService) Register(req *RegisterRequest) (*models.User, error) {
	email := utils.NormalizeEmail(req.Email)
	if email == "" {
		return nil, ErrInvalidContact
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	user := models.User{
		Email:    email,
		Name:     strings.TrimSpace(req.Name),
		Role:     "user",
		IsActive: true,
	}
	if req.Phone != "" {
		phone := utils.NormalizePhone(req.Phone)
		if phone == "" {
			return nil, ErrInvalidContact
		}
		user.Phone = &phone
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user.Password = hash

	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if _, lookupErr := s.FindByEmail(email); lookupErr == nil {
				return nil, ErrEmailTaken
			}
			return nil, ErrPhoneTaken
		}
		return nil, err
	}
	return &user, nil
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(req *LoginRequest) (*LoginResponse, error) {
	user, err := s.FindByEmail(req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(user.ID, user.Email, user.Role, s.jwtConfig.ExpireHour)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLogin = &now
	s.db.Model(user).Update("last_login", now)

	return &LoginResponse{
		Token:    token,
		User:     user,
		ExpireAt: now.Add(time.Duration(s.jwtConfig.ExpireHour) * time.Hour),
	}, nil
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	return s.GetByID(id)
}

func (s *AuthService) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, storeError(err, newError(KindNotFound, "user not found"))
	}
	return &user, nil
}

func (s *AuthService) FindByEmail(email string) (*models.User, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, newError(KindNotFound, "user not found")
	}
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, storeError(err, newError(KindNotFound, "user not found"))
	}
	return &user, nil
}

func (s *AuthService) FindByPhone(phone string) (*models.User, error) {
	phone = utils.NormalizePhone(phone)
	if phone == "" {
		return nil, newError(KindNotFound, "user not found")
	}
	var user models.User
	if err := s.db.Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, storeError(err, newError(KindNotFound, "user not found"))
	}
	return &user, nil
}

// CreateAdminIfNotExists creates the first global admin. It is a no-op when
// an admin exists or when email or password is empty.
func (s *AuthService) CreateAdminIfNotExists(email, password string) error {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	if err := utils.ValidatePassword(password); err != nil {
		return err
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	// Configured by the operator, so the address counts as confirmed.
	now := time.Now()
	admin := models.User{
		Email:           email,
		Password:        hashedPassword,
		Name:            "Administrator",
		Role:            "admin",
		IsActive:        true,
		EmailVerifiedAt: &now,
	}
	return s.db.Create(&admin).Error
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func (s *AuthService) ChangePassword(userID uint, req *ChangePasswordRequest) error {
	user, err := s.GetByID(userID)
	if err != nil {
		return err
	}

	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return ErrIncorrectPassword
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	hashedPassword, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.Model(user).Update("password", hashedPassword).Error
}

// VerifyContacts marks the user's stored email and/or phone as confirmed.
// It is the operator path; users confirm their email with ConfirmEmail.
func (s *AuthService) VerifyContacts(userID uint, email, phone bool) (*models.User, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if phone && user.Phone == nil {
		return nil, ErrInvalidContact
	}

	now := time.Now()
	updates := map[string]interface{}{}
	if email && user.EmailVerifiedAt == nil {
		updates["email_verified_at"] = now
		user.EmailVerifiedAt = &now
	}
	if phone && user.PhoneVerifiedAt == nil {
		updates["phone_verified_at"] = now
		user.PhoneVerifiedAt = &now
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// IssueEmailVerification returns a token proving control of the user's
// current email, or "" when it is already verified.
func (s *AuthService) IssueEmailVerification(userID uint) (string, *models.User, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return "", nil, err
	}
	if user.EmailVerifiedAt != nil {
		return "", user, nil
	}
	token, err := utils.GenerateVerificationToken(user.ID, user.Email, emailVerificationHours)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ConfirmEmail verifies the email named in token. A token issued for an
// address the account no longer holds is rejected.
func (s *AuthService) ConfirmEmail(token string) (*models.User, error) {
	claims, err := utils.ParseVerificationToken(token)
	if err != nil {
		return nil, ErrInvalidVerification
	}
	user, err := s.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidVerification
		}
		return nil, err
	}
	if user.Email != claims.Email {
		return nil, ErrInvalidVerification
	}
	return s.VerifyContacts(user.ID, true, false)
}
