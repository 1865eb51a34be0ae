// Package auth gates host-only operations behind an admin password and signed tokens.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "live-quiz-service/internal/errors"
)

const (
	DefaultTokenTTL = 12 * time.Hour
	adminSubject    = "admin"
	issuer          = "live-quiz-service"
)

var (
	ErrBadPassword  = errors.New("invalid password")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Gate checks the admin password and issues HS256 tokens for it.
type Gate struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewGate builds a gate. An empty password disables admin login entirely; an empty
// secret is replaced by a random one, so tokens die with the process.
func NewGate(password, secret string, ttl time.Duration) (*Gate, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		key = []byte(hex.EncodeToString(buf))
	}
	return &Gate{password: []byte(password), secret: key, ttl: ttl, now: time.Now}, nil
}

// Check reports whether password is the admin password.
func (g *Gate) Check(password string) bool {
	if len(g.password) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(g.password, []byte(password)) == 1
}

// Login exchanges the admin password for a signed token.
func (g *Gate) Login(password string) (string, time.Time, error) {
	if !g.Check(password) {
		return "", time.Time{}, ErrBadPassword
	}
	now := g.now()
	expiresAt := now.Add(g.ttl)
	claims := &Claims{
		Role: adminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   adminSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify validates a token issued by Login.
func (g *Gate) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(g.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role != adminSubject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid "Authorization: Bearer <token>" header.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, "Authorization header is required")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, "Invalid authorization header format")
			return
		}
		if _, err := g.Verify(parts[1]); err != nil {
			abort(c, "Invalid or expired token")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.Unauthenticated(message))
}
