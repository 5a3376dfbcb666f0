package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRandomOrderID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := RandomOrderID()
		if err != nil {
			t.Fatalf("random order id: %v", err)
		}
		if len(id) != 11 || !strings.HasPrefix(id, "10") {
			t.Fatalf("expected an 11-digit id starting with 10, got %q", id)
		}
		for _, r := range id {
			if r < '0' || r > '9' {
				t.Fatalf("expected digits only, got %q", id)
			}
		}
		seen[id] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected varying order ids")
	}
}

func TestRandomReferralCode(t *testing.T) {
	code, err := RandomReferralCode()
	if err != nil {
		t.Fatalf("random referral code: %v", err)
	}
	if len(code) != 5 {
		t.Fatalf("expected a 5-character code, got %q", code)
	}
	for _, r := range code {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'z') {
			t.Fatalf("unexpected character %q in code %q", r, code)
		}
	}
}

func TestRandomPhoneCode(t *testing.T) {
	code, err := RandomPhoneCode()
	if err != nil {
		t.Fatalf("random phone code: %v", err)
	}
	if len(code) != 4 {
		t.Fatalf("expected a 4-digit code, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected digits only, got %q", code)
		}
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatal("expected the original password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("expected a wrong password rejected")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	token, err := GenerateToken("secret", userID, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	parsed, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if parsed != userID {
		t.Fatalf("expected %s back, got %s", userID, parsed)
	}

	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatal("expected a wrong secret rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := GenerateToken("secret", uuid.New(), -time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatal("expected an expired token rejected")
	}
}
