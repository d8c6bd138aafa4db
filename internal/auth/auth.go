package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/chocobo244/creatingcustomersegment/internal/errors"
)

// ScopeAdmin grants the model config and rate limit administration routes
const ScopeAdmin = "admin"

// MinSecretLength is the shortest HMAC secret accepted for signing
const MinSecretLength = 32

const subjectKey = "auth_subject"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrShortSecret  = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
)

// Claims are the registered JWT claims plus the granted scopes
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authenticator issues and verifies HS256 bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrShortSecret
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for subject valid for ttl
func (a *Authenticator) Issue(subject string, ttl time.Duration, scopes ...string) (string, error) {
	now := a.now()
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and checks its signature, issuer and expiry
func (a *Authenticator) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Require rejects requests without a valid bearer token granting scope
func (a *Authenticator) Require(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c)
		if err != nil {
			a.reject(c, apperrors.NewUnauthorizedError("a bearer token is required", err))
			return
		}

		claims, err := a.Verify(raw)
		if err != nil {
			a.reject(c, apperrors.NewUnauthorizedError("invalid bearer token", err))
			return
		}
		if !claims.HasScope(scope) {
			c.Error(apperrors.NewForbiddenError(scope))
			c.Abort()
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

func (a *Authenticator) reject(c *gin.Context, err *apperrors.AppError) {
	c.Header("WWW-Authenticate", `Bearer realm="`+a.issuer+`"`)
	c.Error(err)
	c.Abort()
}

// Subject returns the authenticated subject, if any
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}
