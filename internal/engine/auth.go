package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const invalidCredentials = "Invalid email or passwords"

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and records the client IP as its last login.
func (e *Engine) Register(ctx context.Context, name, email, password, ip string) (*models.User, error) {
	defer e.observe("register", time.Now())

	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if name == "" || email == "" || password == "" {
		return nil, utils.NewInvalidInputError("name, email and password are required")
	}

	existing, err := e.db.GetUserByEmail(ctx, email)
	if err != nil && !utils.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, utils.NewAppError(utils.ErrUserAlreadyExists, "User with this email already exists", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), e.bcryptCost)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "Failed to hash password", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		Role:         models.RoleUser,
		LastLoginIP:  ip,
	}
	if err := e.db.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("Engine: registered User %s", user.ID)
	return user, nil
}

// Login checks credentials. Unknown email and wrong password fail the same way.
func (e *Engine) Login(ctx context.Context, email, password, ip string) (*models.User, error) {
	defer e.observe("login", time.Now())

	user, err := e.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.NewAppError(utils.ErrInvalidCredentials, invalidCredentials, nil)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidCredentials, invalidCredentials, nil)
	}

	if err := e.db.UpdateUserLogin(ctx, user.ID, ip); err != nil {
		log.Printf("Engine: failed to record login for User %s: %v", user.ID, err)
	} else {
		user.LastLoginIP = ip
	}
	return user, nil
}

func (e *Engine) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return e.db.GetUser(ctx, id)
}

// UpdateProfile renames the user.
func (e *Engine) UpdateProfile(ctx context.Context, userID uuid.UUID, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, utils.NewInvalidInputError("Username is required")
	}
	if err := e.db.UpdateUserName(ctx, userID, name); err != nil {
		return nil, err
	}
	return e.db.GetUser(ctx, userID)
}

// RequestPasswordReset only confirms the account exists. No reset token is
// issued and no email is sent.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := e.db.GetUserByEmail(ctx, normalizeEmail(email))
	if utils.IsNotFound(err) {
		return utils.NewInvalidInputError("User with this email does not exist")
	}
	return err
}
