package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartqueue/smartqueue-api/internal/config"
	apperrors "github.com/smartqueue/smartqueue-api/pkg/errors"
)

// SessionClaims is the front-desk session token payload. SessionID keys
// the one-mutation-in-flight guard on the control surface.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

const RoleFrontDesk = "frontdesk"

// Service exchanges the shared clinic PIN for a short-lived session
// token. The PIN itself is never stored, only its bcrypt hash from
// config.
type Service struct {
	cfg config.AuthConfig
}

func NewService(cfg config.AuthConfig) *Service {
	return &Service{cfg: cfg}
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) OpenSession(ctx context.Context, pin string) (*Session, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.PINHash), []byte(pin)); err != nil {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid PIN"))
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(s.cfg.SessionTTLMinutes) * time.Minute)

	claims := SessionClaims{
		SessionID: uuid.New().String(),
		Role:      RoleFrontDesk,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) VerifySession(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Role != RoleFrontDesk {
		return nil, apperrors.Unauthorized(fmt.Errorf("invalid session token"))
	}
	return claims, nil
}

// HashPIN is a setup helper for generating the config value.
func HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
