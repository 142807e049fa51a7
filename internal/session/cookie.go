package session

import "net/http"

const (
	CookieName = "__Host-session"

	// InsecureCookieName is used when Secure is off. Browsers reject a
	// __Host- cookie without the Secure attribute.
	InsecureCookieName = "wayfarer_session"
)

// CookieOptions defines how the session cookie binding a browser to the
// active session is issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// Name is the cookie name for these options.
func (o CookieOptions) Name() string {
	if o.Secure {
		return CookieName
	}
	return InsecureCookieName
}

// SetCookie issues the session cookie to the client.
func SetCookie(
	w http.ResponseWriter,
	s Session,
	opts CookieOptions,
) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name(),
		Value:    s.SessionID,
		Path:     opts.Path,
		Expires:  s.ExpiresAt,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(
	w http.ResponseWriter,
	opts CookieOptions,
) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name(),
		Value:    "",
		Path:     opts.Path,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ReadCookie returns the session id the request carries, if any.
func ReadCookie(r *http.Request, opts CookieOptions) (string, bool) {
	cookie, err := r.Cookie(opts.Name())
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
