// Package auth issues and validates bearer tokens for the operator
// boundary: a single shared-secret JWT scheme (no per-user accounts,
// since the pendant has exactly one operator console at a time),
// following the teacher's HS256 claims shape and dev/production secret
// split.
package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid operator credentials")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
)

// Issuer signs and validates operator bearer tokens.
type Issuer struct {
	secret       []byte
	tokenTTL     time.Duration
	passwordHash []byte
}

// devSecret is used only when PENDANT_ENV is not "production"; a
// production deployment without PENDANT_JWT_SECRET set refuses to
// start, matching the teacher's fail-closed pattern.
const devSecret = "pendant_dev_jwt_secret_not_for_production"

// NewIssuer builds an Issuer whose tokens are valid for ttl, checking
// presented passwords against operatorPasswordHash (produced by
// HashPassword). Returns an error if run in production without
// PENDANT_JWT_SECRET set to at least 32 bytes, mirroring the teacher's
// fail-closed startup check.
func NewIssuer(operatorPasswordHash string, ttl time.Duration) (*Issuer, error) {
	secret := []byte(os.Getenv("PENDANT_JWT_SECRET"))
	if len(secret) < 32 {
		if isDevelopmentMode() {
			secret = []byte(devSecret)
		} else {
			return nil, fmt.Errorf("auth: PENDANT_JWT_SECRET must be set and at least 32 bytes in production")
		}
	}
	return &Issuer{secret: secret, tokenTTL: ttl, passwordHash: []byte(operatorPasswordHash)}, nil
}

func isDevelopmentMode() bool {
	return os.Getenv("PENDANT_ENV") != "production"
}

// HashPassword hashes an operator password for storage in config or a
// secrets store.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate checks password against the configured operator hash and
// issues a signed token on success.
func (i *Issuer) Authenticate(password string) (string, error) {
	if bcrypt.CompareHashAndPassword(i.passwordHash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return i.issue()
}

func (i *Issuer) issue() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "operator",
		"iat": now.Unix(),
		"exp": now.Add(i.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a bearer token, returning ErrInvalidToken
// for any failure (expired, malformed, wrong signature).
func (i *Issuer) Validate(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
