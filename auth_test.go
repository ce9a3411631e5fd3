package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	// keep password hashing fast in tests
	bcryptCost = bcrypt.MinCost
}

func TestControlTokenRoundTrip(t *testing.T) {
	a := NewAuth(nil)
	tok, err := a.IssueControlToken("arena-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.ValidateControlToken(tok, "arena-1"); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestControlTokenWrongArena(t *testing.T) {
	a := NewAuth(nil)
	tok, _ := a.IssueControlToken("arena-1")
	err := a.ValidateControlToken(tok, "arena-2")
	if !errors.Is(err, errBadToken) {
		t.Errorf("expected errBadToken, got %v", err)
	}
}

func TestControlTokenOtherSecret(t *testing.T) {
	tok, _ := NewAuth(nil).IssueControlToken("arena-1")
	if err := NewAuth(nil).ValidateControlToken(tok, "arena-1"); !errors.Is(err, errBadToken) {
		t.Errorf("token from another server accepted: %v", err)
	}
}

func TestControlTokenExpired(t *testing.T) {
	a := NewAuth(nil)
	claims := jwt.MapClaims{
		"sid": "arena-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.ValidateControlToken(tok, "arena-1"); !errors.Is(err, errBadToken) {
		t.Errorf("expired token accepted: %v", err)
	}
}

func TestControlTokenNoneAlg(t *testing.T) {
	a := NewAuth(nil)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sid": "arena-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.ValidateControlToken(tok, "arena-1"); err == nil {
		t.Error("unsigned token accepted")
	}
	if err := a.ValidateControlToken("garbage", "arena-1"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(h, "pw") || CheckPassword(h, "PW") {
		t.Error("password check mismatch")
	}
	if !CheckPassword(nil, "anything") {
		t.Error("empty hash should accept any password")
	}
	if _, err := HashPassword(strings.Repeat("x", maxPasswordLen+1)); err == nil {
		t.Error("overlong password should be rejected")
	}
}

func TestAllowAttemptRateLimit(t *testing.T) {
	a := NewAuth(nil)
	for i := 0; i < maxPasswordTries; i++ {
		if !a.AllowAttempt("1.2.3.4") {
			t.Fatalf("attempt %d refused", i+1)
		}
	}
	if a.AllowAttempt("1.2.3.4") {
		t.Error("attempt over the limit allowed")
	}
	if !a.AllowAttempt("5.6.7.8") {
		t.Error("limit should be per IP")
	}

	// window expiry resets the count
	a.rateMu.Lock()
	a.rateMap["1.2.3.4"].ResetAt = time.Now().Add(-time.Second)
	a.rateMu.Unlock()
	if !a.AllowAttempt("1.2.3.4") {
		t.Error("attempt after window should be allowed")
	}
}

func TestSecretPersistsInDB(t *testing.T) {
	db := openTestDB(t)
	a1 := NewAuth(db)
	tok, _ := a1.IssueControlToken("arena-1")

	a2 := NewAuth(db)
	if err := a2.ValidateControlToken(tok, "arena-1"); err != nil {
		t.Errorf("token should survive restart with same DB: %v", err)
	}
}
