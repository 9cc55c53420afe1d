package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789"

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)

	token, err := m.Generate("user-1", "Ann")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.Subject != "user-1" || claims.Name != "Ann" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := m.Generate("", ""); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	good, _ := m.Generate("user-1", "")

	expired := NewJWTManager(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Generate("user-1", "")

	other, _ := NewJWTManager("another-secret-0123", time.Hour).Generate("user-1", "")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"expired", old},
		{"wrong secret", other},
		{"unsigned", none},
		{"tampered", good + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	token, _ := m.Generate("user-42", "")

	var seen string
	h := RequireAuth(m, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		code   int
		user   string
	}{
		{"valid", "Bearer " + token, http.StatusOK, "user-42"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest("GET", "/api/debts", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.code || seen != tt.user {
				t.Fatalf("code = %d user = %q, want %d %q", rec.Code, seen, tt.code, tt.user)
			}
		})
	}
}
