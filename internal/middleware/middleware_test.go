package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lexi-tutor/lexi-api/internal/apperr"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject}
	if !exp.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	valid := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "kid-1", time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), "kid-1", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "kid-1", time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "kid-1", time.Time{}), http.StatusUnauthorized},
		{"other hmac", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), "kid-1", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), "", time.Now().Add(time.Hour)), http.StatusUnauthorized},
	}

	h := Auth(testSecret)(echoUser())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status: want=%d got=%d body=%s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status == http.StatusOK && rec.Body.String() != "kid-1" {
				t.Fatalf("user id: got=%q", rec.Body.String())
			}
		})
	}
}

func TestLoggingCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get(CorrelationIDHeader) != "abc-123" {
		t.Fatalf("correlation id not propagated: ctx=%q header=%q", seen, rec.Header().Get(CorrelationIDHeader))
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status: got=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(CorrelationIDHeader) == "" || seen == "" {
		t.Fatalf("correlation id should be generated")
	}
}

func TestUserRateLimit(t *testing.T) {
	h := UserRateLimit(2, time.Minute)(echoUser())

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if call("kid-1") != http.StatusOK || call("kid-1") != http.StatusOK {
		t.Fatalf("first requests should pass")
	}
	if got := call("kid-1"); got != http.StatusTooManyRequests {
		t.Fatalf("third request: want=429 got=%d", got)
	}
	if got := call("kid-2"); got != http.StatusOK {
		t.Fatalf("other users have their own budget, got=%d", got)
	}
}

func TestParseTimezoneOffset(t *testing.T) {
	if got, err := ParseTimezoneOffset("-120"); err != nil || got != -120 {
		t.Fatalf("parse: got=%d err=%v", got, err)
	}
	for _, bad := range []string{"", "abc", "1.5", "100000"} {
		if _, err := ParseTimezoneOffset(bad); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%q: want validation error, got %v", bad, err)
		}
	}
}

func TestValidateIDs(t *testing.T) {
	if err := ValidateConversationID("0190a1b2-7c3d-7e4f-8a9b-0c1d2e3f4a5b"); err != nil {
		t.Fatalf("valid id: %v", err)
	}
	if err := ValidateConversationID("nope"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if err := ValidateStreamID("../etc"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}
