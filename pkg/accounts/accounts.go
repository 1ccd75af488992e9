// Package accounts handles email/password signup and signin on top of the
// document store.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"chatsync/pkg/auth"
	"chatsync/pkg/docstore"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

var (
	ErrEmailTaken         = errors.New("accounts: email already registered")
	ErrInvalidCredentials = errors.New("accounts: invalid email or password")
	ErrInvalidInput       = errors.New("accounts: invalid input")
)

const (
	fieldEmail        = "email"
	fieldPasswordHash = "passwordHash"
	fieldCreatedAt    = "createdAt"
	minPasswordLen    = 6
)

// Store is the subset of the document store accounts need.
type Store interface {
	Get(ctx context.Context, path string) (*docstore.Document, error)
	QueryEquals(ctx context.Context, collection, field string, value any) ([]*docstore.Document, error)
	AddUnique(ctx context.Context, collection, field string, value any, fields docstore.Fields) (string, bool, error)
	Set(ctx context.Context, path string, fields docstore.Fields) error
}

type Service struct {
	store  Store
	tokens *auth.Issuer
	cost   int
}

func NewService(store Store, tokens *auth.Issuer) *Service {
	return &Service{store: store, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Session is what a successful signup or signin returns.
type Session struct {
	User      models.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email", ErrInvalidInput)
	}
	return email, nil
}

// Signup registers an account and writes its public profile to
// users/{userId}.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, created, err := s.store.AddUnique(ctx, models.CollectionAccounts, fieldEmail, email, docstore.Fields{
		fieldPasswordHash: string(hash),
		fieldCreatedAt:    docstore.ServerTimestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if !created {
		return nil, ErrEmailTaken
	}

	user := models.User{UserID: id, Email: email, Name: name}
	if err := s.store.Set(ctx, models.UserPath(id), user.Fields()); err != nil {
		return nil, fmt.Errorf("write profile: %w", err)
	}
	logger.Info("account_created", "user", id)
	return s.session(user)
}

// Signin checks the password and issues a fresh token.
func (s *Service) Signin(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	docs, err := s.store.QueryEquals(ctx, models.CollectionAccounts, fieldEmail, email)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		// keep timing close to the wrong-password path
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	acct := docs[0]
	hash, _ := acct.Fields[fieldPasswordHash].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		logger.Debug("signin_rejected", "user", acct.ID)
		return nil, ErrInvalidCredentials
	}

	doc, err := s.store.Get(ctx, models.UserPath(acct.ID))
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	user := models.UserFromFields(doc.Fields)
	user.UserID = acct.ID
	return s.session(user)
}

func (s *Service) session(u models.User) (*Session, error) {
	tok, exp, err := s.tokens.Issue(u.UserID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: tok, ExpiresAt: exp}, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("chatsync-dummy"), bcrypt.MinCost)
