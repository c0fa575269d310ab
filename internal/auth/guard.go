// Package auth issues and verifies the session cookie that protects the
// ledger endpoints.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kasharian/internal/core"
)

// CookieName is the session cookie.
const CookieName = "token"

// Identity is an authenticated user.
type Identity struct {
	Username string
}

// Claims is the token payload.
type Claims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// Options configures a Guard.
type Options struct {
	Secret            string
	AdminUsername     string
	AdminPasswordHash string
	// ExtraUsers is "name=hash;name2=hash2". Extra users cannot reset.
	ExtraUsers   string
	CookieSecure bool
	Clock        core.Clock
}

// Guard checks credentials and session tokens.
type Guard struct {
	secret       []byte
	admin        string
	users        map[string][]byte
	cookieSecure bool
	clock        core.Clock
}

// dummyHash keeps Login timing similar for unknown users.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3QZ5s6Jx3Hc3p1mQkX9x1mK")

func NewGuard(opts Options) (*Guard, error) {
	if len(opts.Secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 characters")
	}
	admin := strings.TrimSpace(opts.AdminUsername)
	if admin == "" {
		return nil, errors.New("admin username is required")
	}

	users, err := ParseUsers(opts.ExtraUsers)
	if err != nil {
		return nil, err
	}
	if _, dup := users[admin]; dup {
		return nil, fmt.Errorf("extra user %q shadows the admin", admin)
	}
	users[admin] = []byte(opts.AdminPasswordHash)

	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock
	}

	return &Guard{
		secret:       []byte(opts.Secret),
		admin:        admin,
		users:        users,
		cookieSecure: opts.CookieSecure,
		clock:        clock,
	}, nil
}

// ParseUsers reads "name=hash;name2=hash2". Blank entries are skipped.
func ParseUsers(s string) (map[string][]byte, error) {
	users := make(map[string][]byte)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, "=")
		name, hash = strings.TrimSpace(name), strings.TrimSpace(hash)
		if !ok || name == "" || !strings.HasPrefix(hash, "$2") {
			return nil, fmt.Errorf("invalid user entry %q: want name=bcrypt-hash", name)
		}
		if _, dup := users[name]; dup {
			return nil, fmt.Errorf("duplicate user %q", name)
		}
		users[name] = []byte(hash)
	}
	return users, nil
}

// Login checks a username and password against the configured bcrypt hashes.
func (g *Guard) Login(username, password string) (Identity, error) {
	hash, ok := g.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Identity{}, core.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Identity{}, core.ErrUnauthorized
	}
	return Identity{Username: username}, nil
}

// Issue signs a token for id that expires at the next Jakarta midnight.
func (g *Guard) Issue(id Identity) (string, time.Time, error) {
	now := g.clock()
	exp := core.NextMidnight(now)
	claims := Claims{
		User: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token and returns its identity.
func (g *Guard) Verify(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return g.secret, nil
	},
		jwt.WithTimeFunc(g.clock),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid || claims.User == "" {
		return Identity{}, core.ErrUnauthorized
	}
	return Identity{Username: claims.User}, nil
}

// Authenticate reads the session cookie, falling back to a Bearer header.
func (g *Guard) Authenticate(r *http.Request) (Identity, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return g.Verify(c.Value)
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return g.Verify(strings.TrimSpace(h[7:]))
	}
	return Identity{}, core.ErrUnauthorized
}

// IsAdmin reports whether id may reset the ledger.
func (g *Guard) IsAdmin(id Identity) bool {
	return id.Username == g.admin
}

// SetCookie issues a token for id and writes it as the session cookie.
func (g *Guard) SetCookie(w http.ResponseWriter, id Identity) error {
	token, exp, err := g.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(exp.Sub(g.clock()).Seconds()),
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie.
func (g *Guard) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
