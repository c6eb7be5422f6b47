package auth

import (
	"errors"
	"time"

	"pos-service/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrWrongApp         = errors.New("token was issued by another app")
	ErrTokenRevoked     = errors.New("token has been revoked")
)

// IssuedAtPrecision is the resolution of credential timestamps. Revocation
// marks use the same resolution so a sign-out covers credentials issued
// earlier within the same second.
const IssuedAtPrecision = time.Microsecond

func init() {
	jwt.TimePrecision = IssuedAtPrecision
}

// Claims represents the bearer credential claims. ImpersonatedBy carries the
// admin id when an admin acts as the subject tenant.
type Claims struct {
	jwt.RegisteredClaims
	App            string `json:"app"`
	ImpersonatedBy string `json:"imp,omitempty"`
}

// PrincipalID is the subject of the credential
func (c *Claims) PrincipalID() string {
	return c.Subject
}

func (c *Claims) IsImpersonation() bool {
	return c.ImpersonatedBy != ""
}

// IssuedAtTime returns the token's issued-at time
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// JWTService signs and validates credentials for one app
type JWTService struct {
	app        string
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewJWTService creates a JWT service for the app described by cfg
func NewJWTService(cfg config.AppConfig) *JWTService {
	return &JWTService{
		app:        cfg.Name,
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.TokenExpiration,
	}
}

// Generate signs a credential for principalID. A zero ttl uses the app default.
func (s *JWTService) Generate(principalID, impersonatedBy string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.expiration
	}
	now = now.Truncate(IssuedAtPrecision)
	expiresAt := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   principalID,
			Audience:  jwt.ClaimStrings{s.app},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		App:            s.app,
		ImpersonatedBy: impersonatedBy,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and checks signature, expiry, issuer and audience
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.app))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenInvalidAudience), errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrWrongApp
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.App != s.app {
		return nil, ErrWrongApp
	}
	return claims, nil
}
