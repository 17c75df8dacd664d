package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/sessionauth"
)

type stubAuth map[string]*sessionauth.Principal

func (s stubAuth) Authenticate(_ context.Context, token string) (*sessionauth.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, sessionauth.ErrInvalidToken
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
		ok     bool
	}{
		{"cookie", "c-token", "", "c-token", true},
		{"cookie wins", "c-token", "Bearer h-token", "c-token", true},
		{"bearer", "", "Bearer h-token", "h-token", true},
		{"bearer lowercase", "", "bearer h-token", "h-token", true},
		{"empty bearer", "", "Bearer   ", "", false},
		{"basic", "", "Basic abc", "", false},
		{"none", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := TokenFromRequest(r)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	auth := stubAuth{"good": {UserID: "u1", SessionID: "s1"}}

	var seen *sessionauth.Principal
	h := Guard(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Error("principal missing from context")
		}
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if seen == nil || seen.UserID != "u1" || seen.SessionID != "s1" {
		t.Fatalf("unexpected principal %+v", seen)
	}

	for _, header := range []string{"", "Bearer bad"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestGuardNilAuthenticator(t *testing.T) {
	h := Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPrincipalFromContextEmpty(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal")
	}
	var nilP *sessionauth.Principal
	if _, ok := PrincipalFromContext(ContextWithPrincipal(context.Background(), nilP)); ok {
		t.Fatal("nil principal must not count")
	}
}
