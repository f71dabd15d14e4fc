package handler

import (
	"net/http"

	"cronostudio/internal/middleware"
	"cronostudio/internal/model"
	"cronostudio/internal/service"
	"cronostudio/pkg/apierror"
)

// ProfileHandler serves the authenticated user's own account. Every route
// sits behind RequireAuth, so a missing identity is a programming error.
type ProfileHandler struct {
	service *service.AuthService
	cookies cookieWriter
}

func NewProfileHandler(authService *service.AuthService, secureCookies bool) *ProfileHandler {
	return &ProfileHandler{service: authService, cookies: cookieWriter{secure: secureCookies}}
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	user, err := h.service.GetProfile(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	var payload model.UpdateProfileRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), identity.UserID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	var payload model.ChangePasswordRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity.UserID, payload.CurrentPassword, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"changed": true}, nil)
}

func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	if err := h.service.DeleteAccount(r.Context(), identity.UserID); err != nil {
		writeError(w, err)
		return
	}

	h.cookies.clearAuthCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true}, nil)
}
