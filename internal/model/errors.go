package model

import (
	"net/http"

	"cronostudio/pkg/apierror"
)

// Auth error taxonomy. Every value carries a machine-readable code plus the
// HTTP status it maps to at the route boundary, so handlers never invent
// status codes ad hoc.
var (
	ErrEmailExists         = apierror.New("EMAIL_EXISTS", "email already registered", "", http.StatusConflict)
	ErrInvalidCredentials  = apierror.New("INVALID_CREDENTIALS", "invalid email or password", "", http.StatusUnauthorized)
	ErrEmailNotVerified    = apierror.New("EMAIL_NOT_VERIFIED", "email address is not verified", "", http.StatusUnauthorized)
	ErrInvalidRefreshToken = apierror.New("INVALID_REFRESH_TOKEN", "refresh token is invalid or expired", "", http.StatusUnauthorized)
	ErrUserNotFound        = apierror.New("USER_NOT_FOUND", "user not found", "", http.StatusNotFound)
	ErrTokenExpired        = apierror.New("TOKEN_EXPIRED", "access token has expired", "", http.StatusUnauthorized)
	ErrInvalidToken        = apierror.New("INVALID_TOKEN", "access token is invalid", "", http.StatusUnauthorized)
	ErrInvalidPassword     = apierror.New("INVALID_PASSWORD", "current password is incorrect", "", http.StatusBadRequest)
	ErrProfileNoChanges    = apierror.New("PROFILE_NO_CHANGES", "no profile fields to update", "", http.StatusBadRequest)
	ErrSessionRepoMissing  = apierror.New("SESSION_REPO_MISSING", "session store is not configured", "", http.StatusInternalServerError)

	ErrServiceUserMisconfigured = apierror.New("SERVICE_USER_MISCONFIGURED", "service user is not configured", "", http.StatusInternalServerError)

	ErrChannelNotFound = apierror.New("CHANNEL_NOT_FOUND", "channel not found", "", http.StatusNotFound)
	ErrVideoNotFound   = apierror.New("VIDEO_NOT_FOUND", "video not found", "", http.StatusNotFound)
	ErrRunNotFound     = apierror.New("RUN_NOT_FOUND", "automation run not found", "", http.StatusNotFound)
)
