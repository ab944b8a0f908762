package auth

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// CookiePolicy decides the flags on the refresh cookie.
type CookiePolicy struct {
	// Production enables Secure and SameSite=None for a cross-site SPA.
	Production bool
	MaxAge     time.Duration
}

// SetRefreshCookie writes token as the HttpOnly refresh cookie.
func (p CookiePolicy) SetRefreshCookie(w http.ResponseWriter, token string) {
	c := p.base()
	c.Value = token
	c.MaxAge = int(p.MaxAge / time.Second)
	c.Expires = time.Now().Add(p.MaxAge)
	http.SetCookie(w, c)
}

// ClearRefreshCookie expires the refresh cookie.
func (p CookiePolicy) ClearRefreshCookie(w http.ResponseWriter) {
	c := p.base()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

// RefreshTokenFromRequest returns the refresh cookie value, or "" if absent.
func RefreshTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (p CookiePolicy) base() *http.Cookie {
	c := &http.Cookie{
		Name:     RefreshCookieName,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if p.Production {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
