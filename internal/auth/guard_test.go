package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kasharian/internal/core"
)

const secret = "0123456789abcdef-test"

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func fixedClock(ts string) core.Clock {
	t, _ := time.ParseInLocation(core.TimestampLayout, ts, core.Jakarta)
	return func() time.Time { return t }
}

func newGuard(t *testing.T, clock core.Clock) *Guard {
	t.Helper()
	g, err := NewGuard(Options{
		Secret:            secret,
		AdminUsername:     "admin",
		AdminPasswordHash: hash(t, "rahasia"),
		ExtraUsers:        "kasir=" + hash(t, "kasir123"),
		CookieSecure:      true,
		Clock:             clock,
	})
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return g
}

func TestNewGuardValidation(t *testing.T) {
	if _, err := NewGuard(Options{Secret: "short", AdminUsername: "admin"}); err == nil {
		t.Fatal("expected short secret error")
	}
	if _, err := NewGuard(Options{Secret: secret}); err == nil {
		t.Fatal("expected missing admin error")
	}
	if _, err := NewGuard(Options{Secret: secret, AdminUsername: "admin", ExtraUsers: "admin=$2a$x"}); err == nil {
		t.Fatal("expected shadowed admin error")
	}
}

func TestParseUsers(t *testing.T) {
	users, err := ParseUsers(" a=$2a$10$x ; ;b=$2b$10$y")
	if err != nil || len(users) != 2 || string(users["b"]) != "$2b$10$y" {
		t.Fatalf("ParseUsers = %v, %v", users, err)
	}
	for _, bad := range []string{"a", "=$2a$x", "a=plain", "a=$2a$x;a=$2a$y"} {
		if _, err := ParseUsers(bad); err == nil {
			t.Errorf("ParseUsers(%q) expected error", bad)
		}
	}
}

func TestLogin(t *testing.T) {
	g := newGuard(t, nil)

	id, err := g.Login("admin", "rahasia")
	if err != nil || id.Username != "admin" || !g.IsAdmin(id) {
		t.Fatalf("admin login: %+v %v", id, err)
	}
	id, err = g.Login("kasir", "kasir123")
	if err != nil || g.IsAdmin(id) {
		t.Fatalf("extra user login: %+v %v admin=%v", id, err, g.IsAdmin(id))
	}

	for _, tc := range [][2]string{{"admin", "wrong"}, {"nobody", "rahasia"}, {"", ""}} {
		if _, err := g.Login(tc[0], tc[1]); !errors.Is(err, core.ErrUnauthorized) {
			t.Errorf("Login(%q) = %v, want ErrUnauthorized", tc[0], err)
		}
	}
}

func TestIssueExpiresAtJakartaMidnight(t *testing.T) {
	g := newGuard(t, fixedClock("2025-09-06 23:30:00"))

	token, exp, err := g.Issue(Identity{Username: "admin"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	want := time.Date(2025, 9, 7, 0, 0, 0, 0, core.Jakarta)
	if !exp.Equal(want) {
		t.Fatalf("exp = %v, want %v", exp, want)
	}

	id, err := g.Verify(token)
	if err != nil || id.Username != "admin" {
		t.Fatalf("Verify: %+v %v", id, err)
	}

	// One second past midnight the token is rejected.
	g.clock = fixedClock("2025-09-07 00:00:01")
	if _, err := g.Verify(token); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	g := newGuard(t, nil)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		User:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	forged, _ := other.SignedString([]byte("another-secret-value"))

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{User: "admin"}).SignedString([]byte(secret))

	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(secret))

	for name, token := range map[string]string{
		"garbage":    "not-a-jwt",
		"forged":     forged,
		"no expiry":  noExp,
		"no subject": noUser,
	} {
		if _, err := g.Verify(token); !errors.Is(err, core.ErrUnauthorized) {
			t.Errorf("%s: Verify = %v, want ErrUnauthorized", name, err)
		}
	}
}

func TestAuthenticateCookieAndBearer(t *testing.T) {
	g := newGuard(t, nil)
	token, _, _ := g.Issue(Identity{Username: "kasir"})

	r := httptest.NewRequest(http.MethodGet, "/today", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	if id, err := g.Authenticate(r); err != nil || id.Username != "kasir" {
		t.Fatalf("cookie auth: %+v %v", id, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/today", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	if id, err := g.Authenticate(r); err != nil || id.Username != "kasir" {
		t.Fatalf("bearer auth: %+v %v", id, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/today", nil)
	if _, err := g.Authenticate(r); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("anonymous: %v", err)
	}
}

func TestSetAndClearCookie(t *testing.T) {
	g := newGuard(t, fixedClock("2025-09-06 20:00:00"))

	rec := httptest.NewRecorder()
	if err := g.SetCookie(rec, Identity{Username: "admin"}); err != nil {
		t.Fatalf("SetCookie: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "token" || !c.HttpOnly || !c.Secure || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie attributes: %+v", c)
	}
	if c.MaxAge != 4*60*60 {
		t.Fatalf("MaxAge = %d, want 14400", c.MaxAge)
	}

	rec = httptest.NewRecorder()
	g.ClearCookie(rec)
	c = rec.Result().Cookies()[0]
	if c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("cleared cookie: %+v", c)
	}
}
