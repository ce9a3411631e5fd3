package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenExpiry        = 24 * time.Hour
	maxPasswordLen     = 72 // bcrypt limit
	passwordRateWindow = 60 * time.Second
	maxPasswordTries   = 10
)

// bcryptCost is a variable so tests can lower it
var bcryptCost = 12

var errBadToken = errors.New("invalid control token")

// Auth issues arena control tokens and rate-limits password guesses
type Auth struct {
	secret []byte

	// Rate limiting for failed password attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler. db may be nil.
func NewAuth(db *DB) *Auth {
	return &Auth{
		secret:  loadOrCreateSecret(db),
		rateMap: make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Printf("warning: could not persist JWT secret: %v", err)
		}
	}
	return secret
}

// IssueControlToken returns a token that authorizes control of one arena
func (a *Auth) IssueControlToken(arenaID string) (string, error) {
	claims := jwt.MapClaims{
		"sid": arenaID,
		"exp": time.Now().Add(tokenExpiry).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateControlToken checks that tokenStr was issued for arenaID and has not expired
func (a *Auth) ValidateControlToken(tokenStr, arenaID string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errBadToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return errBadToken
	}
	if sid, _ := claims["sid"].(string); sid != arenaID {
		return fmt.Errorf("%w: issued for another arena", errBadToken)
	}
	return nil
}

// HashPassword returns the bcrypt hash of an arena password
func HashPassword(password string) ([]byte, error) {
	if len(password) > maxPasswordLen {
		return nil, fmt.Errorf("password must be at most %d characters", maxPasswordLen)
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
}

// CheckPassword reports whether password matches hash. An empty hash accepts anything.
func CheckPassword(hash []byte, password string) bool {
	if len(hash) == 0 {
		return true
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// AllowAttempt counts a password attempt from ip and reports whether it is within the limit
func (a *Auth) AllowAttempt(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(passwordRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxPasswordTries
}
