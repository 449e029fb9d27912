package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrReconnectDisabled is returned when no signing secret is configured.
var ErrReconnectDisabled = errors.New("reconnect keys are disabled")

// ReconnectClaims identify a player inside a reconnect key.
type ReconnectClaims struct {
	SessionID string `json:"gameUuid"`
	jwt.RegisteredClaims
}

// ReconnectKeys signs and verifies HS256 reconnect keys. A zero-value secret
// disables them.
type ReconnectKeys struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewReconnectKeys creates a signer.
//
// Precondition: ttl > 0 when secret is non-empty.
func NewReconnectKeys(secret string, ttl time.Duration) *ReconnectKeys {
	return &ReconnectKeys{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether keys can be issued.
func (k *ReconnectKeys) Enabled() bool {
	return k != nil && len(k.secret) > 0
}

// Issue returns a key naming playerID in sessionID.
func (k *ReconnectKeys) Issue(sessionID, playerID uuid.UUID) (string, error) {
	if !k.Enabled() {
		return "", ErrReconnectDisabled
	}
	now := k.now()
	claims := ReconnectClaims{
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(k.secret)
}

// Verify checks key and returns the player it names.
//
// Postcondition: Returns an error for a malformed, expired or foreign key.
func (k *ReconnectKeys) Verify(key string) (sessionID, playerID uuid.UUID, err error) {
	if !k.Enabled() {
		return uuid.Nil, uuid.Nil, ErrReconnectDisabled
	}
	var claims ReconnectClaims
	_, err = jwt.ParseWithClaims(key, &claims, func(t *jwt.Token) (any, error) {
		return k.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(k.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("verifying reconnect key: %w", err)
	}
	if sessionID, err = uuid.Parse(claims.SessionID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("reconnect key session: %w", err)
	}
	if playerID, err = uuid.Parse(claims.Subject); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("reconnect key subject: %w", err)
	}
	return sessionID, playerID, nil
}
