package util

import (
	"net/http/httptest"
	"testing"
)

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT(42, "admin", "test-secret")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	userID, role, err := ParseJWT(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
	if role != "admin" {
		t.Errorf("role = %q, want admin", role)
	}
}

func TestParseJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT(42, "client", "right-secret")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	if _, _, err := ParseJWT(token, "wrong-secret"); err == nil {
		t.Error("ParseJWT accepted a token signed with another secret")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer abc123", "abc123"},
		{"lowercase bearer", "bearer abc123", "abc123"},
		{"missing", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"no token", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := ExtractToken(r); got != tt.want {
				t.Errorf("ExtractToken = %q, want %q", got, tt.want)
			}
		})
	}
}
