package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	rejoinTokenExpiry = 2 * time.Hour
	bcryptCost        = 12
)

// SessionAuth issues rejoin tokens for one hosted session and checks
// the optional lobby password. The signing secret is generated per
// session, so tokens from an earlier hosting run never validate.
type SessionAuth struct {
	secret       []byte
	passwordHash []byte // nil when the lobby is open
}

// NewSessionAuth creates the auth state for a session. password may be
// empty for an open lobby.
func NewSessionAuth(password string) (*SessionAuth, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}

	a := &SessionAuth{secret: secret}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		a.passwordHash = hash
	}
	return a, nil
}

// CheckPassword verifies a join attempt against the lobby password;
// always true for an open lobby
func (a *SessionAuth) CheckPassword(password string) bool {
	if a.passwordHash == nil {
		return true
	}
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
}

// IssueRejoinToken signs a token binding a player id to this session,
// letting a dropped peer reclaim its identity
func (a *SessionAuth) IssueRejoinToken(playerID, sessionID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": playerID,
		"sid": sessionID,
		"exp": time.Now().Add(rejoinTokenExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateRejoinToken returns the player id a token reclaims, or an
// error when the token is invalid, expired, or for another session
func (a *SessionAuth) ValidateRejoinToken(tokenStr, sessionID string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	if sid, _ := claims["sid"].(string); sid != sessionID {
		return "", errors.New("token for another session")
	}
	playerID, _ := claims["sub"].(string)
	if playerID == "" {
		return "", errors.New("token missing player id")
	}
	return playerID, nil
}
