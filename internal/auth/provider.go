package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-service/config"
	"pos-service/internal/models"
	"pos-service/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrEmailTaken         = errors.New("email already registered")
)

// MinPasswordLength is the password policy enforced on every credential write.
const MinPasswordLength = 6

// CredentialStore persists identities of every app.
type CredentialStore interface {
	CreateIdentity(ctx context.Context, id *models.Identity) error
	GetIdentity(ctx context.Context, app, id string) (*models.Identity, error)
	GetIdentityByEmail(ctx context.Context, app, email string) (*models.Identity, error)
	UpdateIdentity(ctx context.Context, id *models.Identity) error
	DeleteIdentity(ctx context.Context, app, id string) error
}

// RevocationStore remembers when a principal was signed out.
type RevocationStore interface {
	RevokeCredentials(ctx context.Context, app, principalID string, now time.Time, ttl time.Duration) error
	RevokedAt(ctx context.Context, app, principalID string) (time.Time, error)
}

// Provider is one identity app. The admin surface and the tenant surface each
// own a Provider with its own secret and audience, so a credential minted for
// one is never accepted by the other.
type Provider struct {
	app         string
	jwt         *JWTService
	creds       CredentialStore
	revocations RevocationStore
	maxTTL      time.Duration
	now         func() time.Time
}

// NewProvider creates the identity app described by cfg
func NewProvider(cfg config.AppConfig, creds CredentialStore, revocations RevocationStore) *Provider {
	maxTTL := cfg.TokenExpiration
	if maxTTL <= 0 {
		maxTTL = 7 * 24 * time.Hour
	}
	return &Provider{
		app:         cfg.Name,
		jwt:         NewJWTService(cfg),
		creds:       creds,
		revocations: revocations,
		maxTTL:      maxTTL,
		now:         time.Now,
	}
}

// App returns the app name ("admin" or "tenant")
func (p *Provider) App() string {
	return p.app
}

// VerifyCredential validates a bearer credential and rejects it if the
// principal signed out at or after the instant it was issued.
func (p *Provider) VerifyCredential(ctx context.Context, token string) (*Claims, error) {
	claims, err := p.jwt.Validate(token)
	if err != nil {
		return nil, err
	}

	revokedAt, err := p.revocations.RevokedAt(ctx, p.app, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if !revokedAt.IsZero() && !claims.IssuedAtTime().After(revokedAt) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// SignInWithPassword checks email and password and returns the principal id
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	ident, err := p.creds.GetIdentityByEmail(ctx, p.app, normalizeEmail(email))
	if err != nil {
		if isNotFound(err) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return ident.ID, nil
}

// SignOut invalidates every credential issued to the principal so far
func (p *Provider) SignOut(ctx context.Context, principalID string) error {
	return p.revocations.RevokeCredentials(ctx, p.app, principalID, p.now().Truncate(IssuedAtPrecision), p.maxTTL+time.Minute)
}

// IssueCredential mints a bearer credential for principalID
func (p *Provider) IssueCredential(principalID string, ttl time.Duration) (string, time.Time, error) {
	return p.jwt.Generate(principalID, "", p.now(), ttl)
}

// IssueImpersonationCredential mints a credential for tenantID carrying the
// impersonating admin's id.
func (p *Provider) IssueImpersonationCredential(tenantID, adminID string, ttl time.Duration) (string, time.Time, error) {
	if adminID == "" {
		return "", time.Time{}, errors.New("impersonating admin id is required")
	}
	return p.jwt.Generate(tenantID, adminID, p.now(), ttl)
}

// CreateIdentity provisions a new identity and returns its id
func (p *Provider) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	ident := &models.Identity{
		ID:           uuid.New().String(),
		App:          p.app,
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
	}
	if err := p.creds.CreateIdentity(ctx, ident); err != nil {
		if isConflict(err) {
			return "", ErrEmailTaken
		}
		return "", err
	}
	return ident.ID, nil
}

// UpdateIdentity changes email and/or password. Empty values are left as is.
func (p *Provider) UpdateIdentity(ctx context.Context, principalID, email, password string) error {
	ident, err := p.creds.GetIdentity(ctx, p.app, principalID)
	if err != nil {
		if isNotFound(err) {
			return ErrIdentityNotFound
		}
		return err
	}

	if email != "" {
		ident.Email = normalizeEmail(email)
	}
	if password != "" {
		if len(password) < MinPasswordLength {
			return ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		ident.PasswordHash = string(hash)
	}

	if err := p.creds.UpdateIdentity(ctx, ident); err != nil {
		if isConflict(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// DeleteIdentity removes the identity and revokes its credentials
func (p *Provider) DeleteIdentity(ctx context.Context, principalID string) error {
	if err := p.creds.DeleteIdentity(ctx, p.app, principalID); err != nil && !isNotFound(err) {
		return err
	}
	return p.SignOut(ctx, principalID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrIdentityNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
