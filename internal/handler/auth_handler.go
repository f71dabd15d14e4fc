package handler

import (
	"net/http"
	"strings"

	"cronostudio/internal/model"
	"cronostudio/internal/service"
)

type AuthHandler struct {
	service *service.AuthService
	cookies cookieWriter
	// requireVerifiedEmail delays session issuance until the address is
	// confirmed; registration then returns the bare user.
	requireVerifiedEmail bool
}

func NewAuthHandler(authService *service.AuthService, secureCookies bool, requireVerifiedEmail bool) *AuthHandler {
	return &AuthHandler{
		service:              authService,
		cookies:              cookieWriter{secure: secureCookies},
		requireVerifiedEmail: requireVerifiedEmail,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if h.requireVerifiedEmail {
		user, err := h.service.RegisterWithoutSession(r.Context(), payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, user, nil)
		return
	}

	pair, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeSuccess(w, http.StatusCreated, pair, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeSuccess(w, http.StatusOK, pair, nil)
}

func (h *AuthHandler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	var payload model.GoogleLoginRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.service.LoginWithGoogle(r.Context(), strings.TrimSpace(payload.IDToken))
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeSuccess(w, http.StatusOK, pair, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.service.Refresh(r.Context(), h.refreshTokenFrom(r))
	if err != nil {
		// A rejected refresh token is unrecoverable for this browser;
		// clear the cookies so the client falls back to login.
		h.cookies.clearAuthCookies(w)
		writeError(w, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeSuccess(w, http.StatusOK, pair, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), h.refreshTokenFrom(r)); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.clearAuthCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

// refreshTokenFrom prefers the httpOnly cookie, falling back to a JSON
// body for non-browser clients. A missing token comes back empty and is
// rejected downstream.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return strings.TrimSpace(cookie.Value)
	}

	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}

	var payload model.RefreshRequest
	if err := decodeBody(r, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.RefreshToken)
}
