package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", "dayforge-test")

	token, err := issuer.Issue("user-1", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "owner" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewIssuer("secret-a", "dayforge-test").Issue("user-1", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := NewIssuer("secret-b", "dayforge-test").Validate(token); err == nil {
		t.Fatal("expected validation to fail across secrets")
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	token, err := NewIssuer("secret", "someone-else").Issue("user-1", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := NewIssuer("secret", "dayforge-test").Validate(token); err == nil {
		t.Fatal("expected validation to fail across issuers")
	}
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer("test-secret", "dayforge-test")
	handler := issuer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		if !ok || claims.Subject != "user-1" {
			t.Fatalf("claims missing from request context: %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/schedule", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	token, err := issuer.Issue("user-1", "owner")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/schedule", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token rejected with %d", rec.Code)
	}
}
