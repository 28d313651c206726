package security

import (
	"net/http"
	"time"
)

// Cookie names shared between the handlers and the identity resolver.
const (
	CookieAccessToken   = "access_token"
	CookieRefreshToken  = "refresh_token"
	CookieSessionSecret = "session_token"
)

// CookieOptions is process-wide cookie configuration, loaded once.
type CookieOptions struct {
	Secure   bool
	Domain   string
	SameSite http.SameSite
}

// GetCookie returns the named cookie's value, or "" if absent.
func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetAuthCookies delivers the three credentials as httponly cookies. The
// session cookie's max-age tracks the session expiry so the browser drops it
// when the session can no longer be live anyway.
func SetAuthCookies(w http.ResponseWriter, opts CookieOptions, access, refresh, sessionSecret string, accessTTL, refreshTTL time.Duration, sessionExpiresAt time.Time) {
	setCookie(w, opts, CookieAccessToken, access, int(accessTTL.Seconds()))
	setCookie(w, opts, CookieRefreshToken, refresh, int(refreshTTL.Seconds()))
	sessionMaxAge := int(time.Until(sessionExpiresAt).Seconds())
	if sessionMaxAge < 0 {
		sessionMaxAge = 0
	}
	setCookie(w, opts, CookieSessionSecret, sessionSecret, sessionMaxAge)
}

// ClearAuthCookies expires all three credential cookies.
func ClearAuthCookies(w http.ResponseWriter, opts CookieOptions) {
	setCookie(w, opts, CookieAccessToken, "", -1)
	setCookie(w, opts, CookieRefreshToken, "", -1)
	setCookie(w, opts, CookieSessionSecret, "", -1)
}

func setCookie(w http.ResponseWriter, opts CookieOptions, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
