package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookie_RoundTrip(t *testing.T) {
	s := Session{SessionID: "abc", ExpiresAt: time.Now().Add(time.Hour)}

	for _, secure := range []bool{true, false} {
		opts := CookieOptions{Secure: secure}

		rec := httptest.NewRecorder()
		SetCookie(rec, s, opts)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, opts.Name(), c.Name)
		assert.Equal(t, "/", c.Path)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, secure, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(c)
		id, ok := ReadCookie(req, opts)
		assert.True(t, ok)
		assert.Equal(t, "abc", id)
	}
}

func TestCookie_Names(t *testing.T) {
	assert.Equal(t, "__Host-session", CookieOptions{Secure: true}.Name())
	assert.Equal(t, InsecureCookieName, CookieOptions{}.Name())
}

func TestClearCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearCookie(rec, CookieOptions{Secure: true})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)

	_, ok := ReadCookie(httptest.NewRequest(http.MethodGet, "/", nil), CookieOptions{})
	assert.False(t, ok)
}
