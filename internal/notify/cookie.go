// Package notify carries one-shot messages across a redirect in short-lived
// cookies. A value is consumed by the first read.
package notify

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"
)

const (
	FlashCookieName     = "__flash"
	LoginHintCookieName = "__login_from"

	oneShotTTL = 5 * time.Minute
)

// CookieOptions defines how one-shot cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

func setOneShot(w http.ResponseWriter, name string, value []byte, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    base64.RawURLEncoding.EncodeToString(value),
		Path:     opts.Path,
		MaxAge:   int(oneShotTTL.Seconds()),
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// popOneShot reads and clears the named cookie.
func popOneShot(w http.ResponseWriter, r *http.Request, name string, opts CookieOptions) ([]byte, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     opts.Path,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Notice is a user-visible message shown once.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Flash issues notices as one-shot cookies.
type Flash struct {
	Options CookieOptions
}

// Warn queues a warning notice for the next page.
func (f Flash) Warn(w http.ResponseWriter, message string) {
	f.Set(w, Notice{Level: "warning", Message: message})
}

func (f Flash) Set(w http.ResponseWriter, n Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	setOneShot(w, FlashCookieName, data, f.Options)
}

// Pop returns the pending notice, if any, and clears it.
func (f Flash) Pop(w http.ResponseWriter, r *http.Request) (*Notice, bool) {
	raw, ok := popOneShot(w, r, FlashCookieName, f.Options)
	if !ok {
		return nil, false
	}
	var n Notice
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, false
	}
	return &n, true
}

// SetLoginHint remembers where a declarative sign-in prompt came from.
func SetLoginHint(w http.ResponseWriter, from string, opts CookieOptions) {
	setOneShot(w, LoginHintCookieName, []byte(from), opts)
}

// PopLoginHint returns and clears the remembered origin.
func PopLoginHint(w http.ResponseWriter, r *http.Request, opts CookieOptions) (string, bool) {
	raw, ok := popOneShot(w, r, LoginHintCookieName, opts)
	if !ok {
		return "", false
	}
	return string(raw), true
}
