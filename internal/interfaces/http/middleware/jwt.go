package middleware

import (
	"errors"
	"net/http"
	"strings"

	appfee "github.com/feesettle/backend/internal/application/fee"
	"github.com/feesettle/backend/internal/infrastructure/auth"
	"github.com/feesettle/backend/internal/infrastructure/logger"
	"github.com/feesettle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "

	identityKey = "auth_identity"
)

// TokenVerifier turns a bearer token into the calling identity
type TokenVerifier interface {
	ValidateAccessToken(token string) (*auth.Identity, error)
}

var (
	errNoCredentials = errors.New("missing authorization header")
	errNotBearer     = errors.New("authorization scheme is not Bearer")
)

// AuthOption configures JWTAuthMiddleware
type AuthOption func(*authMiddleware)

// WithAuthLogger logs refused requests at debug level
func WithAuthLogger(l *zap.Logger) AuthOption {
	return func(m *authMiddleware) { m.log = l }
}

type authMiddleware struct {
	verifier TokenVerifier
	log      *zap.Logger
}

// JWTAuthMiddleware admits requests carrying a valid access token and binds
// the token's school and user to the request. The tenant always comes from
// the token; no header or parameter can override it.
func JWTAuthMiddleware(verifier TokenVerifier, opts ...AuthOption) gin.HandlerFunc {
	m := &authMiddleware{verifier: verifier, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m.handle
}

func (m *authMiddleware) handle(c *gin.Context) {
	token, err := bearerToken(c.GetHeader(AuthHeaderKey))
	if err != nil {
		m.refuse(c, err)
		return
	}
	identity, err := m.verifier.ValidateAccessToken(token)
	if err != nil {
		m.refuse(c, err)
		return
	}

	schoolID, actorID := identity.SchoolID.String(), identity.UserID.String()
	c.Set(identityKey, identity)
	c.Set(logger.GinKeySchoolID, schoolID)
	c.Set(logger.GinKeyActorID, actorID)

	ctx := logger.WithScope(c.Request.Context(), logger.Scope{SchoolID: schoolID, ActorID: actorID})
	c.Set(logger.GinKeyLogger, logger.FromContext(ctx))
	c.Request = c.Request.WithContext(ctx)

	c.Next()
}

// bearerToken extracts the credentials of a "Bearer <token>" header. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, strings.TrimSpace(BearerPrefix)) {
		return "", errNotBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", auth.ErrInvalidToken
	}
	return token, nil
}

func (m *authMiddleware) refuse(c *gin.Context, err error) {
	m.log.Debug("Request refused by authentication",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))

	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, errNotBearer):
		message = "Authorization header must use the Bearer scheme"
	case errors.Is(err, auth.ErrInvalidTokenType):
		message = "Only access tokens are accepted"
	case !errors.Is(err, errNoCredentials):
		message = "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, message, GetRequestID(c), false))
}

// GetIdentity returns the caller admitted by JWTAuthMiddleware
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	identity, ok := c.Value(identityKey).(*auth.Identity)
	return identity, ok && identity != nil
}

// GetOperationContext is the fee operation context of an authenticated
// request
func GetOperationContext(c *gin.Context) (appfee.OperationContext, bool) {
	identity, ok := GetIdentity(c)
	if !ok {
		return appfee.OperationContext{}, false
	}
	return appfee.OperationContext{
		SchoolID:  identity.SchoolID,
		ActorID:   identity.UserID,
		RequestID: GetRequestID(c),
	}, true
}
