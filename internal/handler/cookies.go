package handler

import (
	"net/http"
	"time"

	"cronostudio/internal/model"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// cookieWriter sets and clears the auth cookie pair. Cookies are httpOnly
// and SameSite=Strict; Secure is on everywhere except local development.
type cookieWriter struct {
	secure bool
}

func (c cookieWriter) setAuthCookies(w http.ResponseWriter, pair model.TokenPair) {
	now := time.Now()
	http.SetCookie(w, c.cookie(accessTokenCookie, pair.AccessToken, int(time.Until(pair.AccessExpiresAt)/time.Second)))
	http.SetCookie(w, c.cookie(refreshTokenCookie, pair.RefreshToken, int(pair.RefreshExpiresAt.Sub(now)/time.Second)))
}

func (c cookieWriter) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(accessTokenCookie, "", -1))
	http.SetCookie(w, c.cookie(refreshTokenCookie, "", -1))
}

func (c cookieWriter) cookie(name string, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
