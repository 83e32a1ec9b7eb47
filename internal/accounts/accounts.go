// internal/accounts/accounts.go
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/auth"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
)

const guestUsername = "Guest"

// Store persists user accounts.
type Store interface {
	// CreateUser fails with apperr.ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserCredentials(ctx context.Context, u *models.User) error
}

// Service registers users, issues identity tokens and upgrades guests to full accounts.
type Service struct {
	store  Store
	hasher hunt.PasswordHasher
	tokens *auth.Issuer
	log    *logrus.Logger
	now    func() time.Time
}

func NewService(store Store, hasher hunt.PasswordHasher, tokens *auth.Issuer, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		log:    logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Credentials are the fields a user supplies to register, log in or claim a guest account.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

func (c *Credentials) normalize() error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Username = strings.TrimSpace(c.Username)
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("invalid email %q: %w", c.Email, apperr.ErrValidation)
	}
	if len(c.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters: %w", apperr.ErrValidation)
	}
	return nil
}

// Register creates a full account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, c Credentials) (*models.User, string, error) {
	if err := c.normalize(); err != nil {
		return nil, "", err
	}
	if c.Username == "" {
		c.Username = strings.SplitN(c.Email, "@", 2)[0]
	}
	hash, err := s.hasher.Hash(c.Password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}
	u, err := s.create(ctx, &models.User{Email: c.Email, Password: hash, Username: c.Username})
	if err != nil {
		return nil, "", err
	}
	return s.withToken(u)
}

// CreateGuest creates an ephemeral user for a visitor without credentials.
func (s *Service) CreateGuest(ctx context.Context) (*models.User, string, error) {
	u, err := s.create(ctx, &models.User{Username: guestUsername, IsEphemeral: true})
	if err != nil {
		return nil, "", err
	}
	return s.withToken(u)
}

func (s *Service) create(ctx context.Context, u *models.User) (*models.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}
	u.ID = id
	u.CreatedAt = s.now()
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id":      u.ID,
		"is_ephemeral": u.IsEphemeral,
	}).Info("user created")
	return u, nil
}

// Login verifies credentials. Unknown emails and wrong passwords look the same.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, "", fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, "", err
	}
	match, err := s.hasher.Compare(password, u.Password)
	if err != nil || !match {
		return nil, "", fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	}
	return s.withToken(u)
}

// Claim turns the guest userID into a full account, keeping its id and history.
func (s *Service) Claim(ctx context.Context, userID uuid.UUID, c Credentials) (*models.User, error) {
	if err := c.normalize(); err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsEphemeral {
		return nil, fmt.Errorf("user %s is not ephemeral: %w", userID, apperr.ErrConflict)
	}
	hash, err := s.hasher.Hash(c.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u.Email = c.Email
	u.Password = hash
	if c.Username != "" {
		u.Username = c.Username
	}
	u.IsEphemeral = false
	if err := s.store.UpdateUserCredentials(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithField("user_id", u.ID).Info("guest account claimed")
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// Authenticate resolves a token to its user id.
func (s *Service) Authenticate(token string) (uuid.UUID, error) {
	id, err := s.tokens.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%v: %w", err, apperr.ErrUnauthorized)
	}
	return id, nil
}

func (s *Service) withToken(u *models.User) (*models.User, string, error) {
	tok, err := s.tokens.CreateJWT(u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create jwt: %w", err)
	}
	return u, tok, nil
}
