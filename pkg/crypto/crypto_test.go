package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if hash == "correct-horse-battery" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !VerifyPassword(hash, "correct-horse-battery") {
		t.Fatal("matching password rejected")
	}
	if VerifyPassword(hash, "correct-horse-battery ") {
		t.Fatal("different password accepted")
	}
	if VerifyPassword("not-a-bcrypt-hash", "correct-horse-battery") {
		t.Fatal("malformed hash accepted")
	}
}

func TestGenerateTokenIsURLSafe(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("token is not url-safe base64: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(raw))
	}

	for _, n := range []int{0, 8, MinTokenBytes - 1} {
		if _, err := GenerateToken(n); !errors.Is(err, ErrTokenTooShort) {
			t.Fatalf("GenerateToken(%d): expected ErrTokenTooShort, got %v", n, err)
		}
		if _, err := GenerateHexToken(n); !errors.Is(err, ErrTokenTooShort) {
			t.Fatalf("GenerateHexToken(%d): expected ErrTokenTooShort, got %v", n, err)
		}
	}
}

func TestGenerateHexTokenShape(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(MinTokenBytes, 64).Draw(t, "bytes")
		token, err := GenerateHexToken(n)
		if err != nil {
			t.Fatalf("token error: %v", err)
		}
		if len(token) != n*2 {
			t.Fatalf("expected %d hex chars, got %d", n*2, len(token))
		}
		if _, err := hex.DecodeString(token); err != nil {
			t.Fatalf("token is not hex: %v", err)
		}
	})
}

func TestGenerateHexTokenIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		token, err := GenerateHexToken(32)
		if err != nil {
			t.Fatalf("token error: %v", err)
		}
		if _, dup := seen[token]; dup {
			t.Fatal("duplicate token generated")
		}
		seen[token] = struct{}{}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Fatal("expected equal strings to match")
	}
	if ConstantTimeEqual("abc", "abd") {
		t.Fatal("expected different strings not to match")
	}
	if ConstantTimeEqual("", "") {
		t.Fatal("expected empty strings never to match")
	}
}
