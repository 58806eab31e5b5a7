package gateway

import (
	"errors"
	"net/http/httptest"
	"testing"

	"smart-query/internal/domain"
)

func newTestAuth() *StaticTokenAuth {
	return NewStaticTokenAuth([]struct {
		Token string
		Name  string
	}{
		{Token: "tok-dashboard", Name: "dashboard"},
		{Token: "tok-batch", Name: "batch"},
	})
}

func TestStaticTokenAuthValid(t *testing.T) {
	auth := newTestAuth()

	info, err := auth.Authenticate("tok-dashboard")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "dashboard" {
		t.Errorf("name = %q, want dashboard", info.Name)
	}

	info, err = auth.Authenticate("tok-batch")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "batch" {
		t.Errorf("name = %q, want batch", info.Name)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := newTestAuth()

	for _, token := range []string{"", "wrong", "tok-dashboard2", "tok"} {
		if _, err := auth.Authenticate(token); !errors.Is(err, domain.ErrAuthInvalid) {
			t.Errorf("token %q: expected ErrAuthInvalid, got %v", token, err)
		}
	}
}

func TestBearerTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/invoke", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(r); got != "abc123" {
		t.Errorf("token = %q, want abc123", got)
	}
}

func TestBearerTokenFromQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/invoke?token=qry456", nil)
	if got := bearerToken(r); got != "qry456" {
		t.Errorf("token = %q, want qry456", got)
	}
}

func TestBearerTokenHeaderWins(t *testing.T) {
	r := httptest.NewRequest("GET", "/invoke?token=qry", nil)
	r.Header.Set("Authorization", "Bearer hdr")
	if got := bearerToken(r); got != "hdr" {
		t.Errorf("token = %q, want hdr", got)
	}
}

func TestBearerTokenMissing(t *testing.T) {
	r := httptest.NewRequest("GET", "/invoke", nil)
	if got := bearerToken(r); got != "" {
		t.Errorf("token = %q, want empty", got)
	}
}

func TestBearerTokenNonBearerScheme(t *testing.T) {
	r := httptest.NewRequest("GET", "/invoke", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := bearerToken(r); got != "" {
		t.Errorf("token = %q, want empty for non-bearer scheme", got)
	}
}
