// Package auth verifies the bearer tokens issued by the identity service
package auth

import (
	"errors"
	"time"

	"github.com/feesettle/backend/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the token_type claim
type TokenType string

// TokenTypeAccess marks tokens accepted by the API
const TokenTypeAccess TokenType = "access"

// DefaultLeeway tolerates clock skew between the identity service and us
const DefaultLeeway = 30 * time.Second

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingSchoolID  = errors.New("missing school_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// parseErrors maps jwt library failures onto the errors callers branch on.
// Anything unlisted is reported as ErrInvalidToken.
var parseErrors = []struct {
	cause, reported error
}{
	{jwt.ErrTokenExpired, ErrExpiredToken},
	{jwt.ErrTokenNotValidYet, ErrTokenNotYetValid},
}

// Claims are the access token claims the fee API relies on
type Claims struct {
	jwt.RegisteredClaims
	SchoolID  string    `json:"school_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	TokenType TokenType `json:"token_type,omitempty"`
}

// Identity is the caller named by a valid token
type Identity struct {
	SchoolID uuid.UUID
	UserID   uuid.UUID
	Username string
}

// Identity checks the tenant and user claims. An absent token_type counts
// as an access token.
func (c *Claims) Identity() (*Identity, error) {
	if c.TokenType != "" && c.TokenType != TokenTypeAccess {
		return nil, ErrInvalidTokenType
	}
	if c.SchoolID == "" {
		return nil, ErrMissingSchoolID
	}
	if c.UserID == "" {
		return nil, ErrMissingUserID
	}
	schoolID, err := parseID(c.SchoolID)
	if err != nil {
		return nil, err
	}
	userID, err := parseID(c.UserID)
	if err != nil {
		return nil, err
	}
	return &Identity{SchoolID: schoolID, UserID: userID, Username: c.Username}, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidClaims
	}
	return id, nil
}

// JWTService verifies HS256 access tokens. Issuing tokens is the identity
// service's job.
type JWTService struct {
	secret []byte
	parser *jwt.Parser
}

type serviceOptions struct {
	leeway time.Duration
	now    func() time.Time
}

// Option configures a JWTService
type Option func(*serviceOptions)

// WithLeeway overrides DefaultLeeway
func WithLeeway(d time.Duration) Option {
	return func(o *serviceOptions) { o.leeway = d }
}

// WithClock evaluates exp and nbf against now instead of the wall clock
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// NewJWTService builds a verifier for cfg. An empty issuer accepts any iss.
func NewJWTService(cfg config.JWTConfig, opts ...Option) *JWTService {
	o := serviceOptions{leeway: DefaultLeeway}
	for _, opt := range opts {
		opt(&o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(o.leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if o.now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(o.now))
	}
	return &JWTService{secret: []byte(cfg.Secret), parser: jwt.NewParser(parserOpts...)}
}

// ValidateAccessToken verifies tokenString and returns the caller
func (s *JWTService) ValidateAccessToken(tokenString string) (*Identity, error) {
	var claims Claims
	token, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		for _, pe := range parseErrors {
			if errors.Is(err, pe.cause) {
				return nil, pe.reported
			}
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidClaims
	}
	return claims.Identity()
}
