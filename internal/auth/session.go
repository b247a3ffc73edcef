package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hmori/go-civic-response/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired session token")

// Session is the authenticated identity threaded explicitly to anything
// that needs the current user. It is created at sign-in and is invalid
// after ExpiresAt; there is no ambient global state.
type Session struct {
	UserID    string
	Role      models.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a session token for the given user.
func (m *Manager) Issue(u *models.User) (string, *Session, error) {
	now := time.Now()
	sess := &Session{
		UserID:    u.ID,
		Role:      u.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	claims := sessionClaims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("error signing session token: %w", err)
	}
	return signed, sess, nil
}

// Parse verifies a token and reconstructs the Session it carries.
func (m *Manager) Parse(tokenString string) (*Session, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return &Session{
		UserID:    claims.Subject,
		Role:      models.Role(claims.Role),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
