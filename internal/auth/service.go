// Package auth implements email/password authentication and JWT issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/filedrop/service/internal/config"
	"github.com/filedrop/service/internal/user"
)

const tokenTTL = 30 * 24 * time.Hour

// ErrEmailTaken is returned when the email is already registered.
var ErrEmailTaken = errors.New("email already in use")

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
// The two cases are deliberately indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service contains the business logic for email/password authentication.
type Service struct {
	repo    *Repository
	userSvc *user.Service
	cfg     *config.Config
}

// NewService creates a new auth Service.
func NewService(repo *Repository, userSvc *user.Service, cfg *config.Config) *Service {
	return &Service{repo: repo, userSvc: userSvc, cfg: cfg}
}

// SignUp registers a new account and issues a JWT token.
func (s *Service) SignUp(ctx context.Context, email, password string) (string, *user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.userSvc.Create(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			return "", nil, ErrEmailTaken
		}
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.repo.RecordEvent(ctx, EventSignup, u.ID, u.Email); err != nil {
		log.Printf("auth: %v", err)
	}

	token, err := s.issueToken(u.ID, u.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// Login verifies credentials and issues a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *user.User, error) {
	u, err := s.userSvc.GetByEmail(ctx, email)
	if err != nil {
		if s.userSvc.IsNotFound(err) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := s.repo.RecordEvent(ctx, EventLogin, u.ID, u.Email); err != nil {
		log.Printf("auth: %v", err)
	}

	token, err := s.issueToken(u.ID, u.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// issueToken creates a signed JWT for the given user.
func (s *Service) issueToken(userID, email string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
