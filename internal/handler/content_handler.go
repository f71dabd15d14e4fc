package handler

import (
	"net/http"

	"cronostudio/internal/middleware"
	"cronostudio/internal/model"
	"cronostudio/internal/service"
	"cronostudio/pkg/apierror"
)

// ContentHandler serves channels, videos, analytics and automation runs.
// Writes run behind the service-or-owner guard and act as the resolved
// actor; reads run behind plain RequireAuth.
type ContentHandler struct {
	service *service.ContentService
}

func NewContentHandler(contentService *service.ContentService) *ContentHandler {
	return &ContentHandler{service: contentService}
}

// actor returns the caller resolved by the service-or-owner guard, falling
// back to the token identity on read routes.
func actor(r *http.Request) (middleware.Actor, bool) {
	if a, ok := middleware.ActorFromContext(r.Context()); ok {
		return a, true
	}
	if identity, ok := middleware.IdentityFromContext(r.Context()); ok {
		return middleware.Actor{UserID: identity.UserID}, true
	}
	return middleware.Actor{}, false
}

func (h *ContentHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	var payload model.CreateChannelRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	channel, err := h.service.CreateChannel(r.Context(), caller.UserID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, channel, nil)
}

func (h *ContentHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	channels, err := h.service.ListChannels(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, channels, &model.Meta{Total: len(channels)})
}

func (h *ContentHandler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	var payload model.CreateVideoRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	video, err := h.service.CreateVideo(r.Context(), caller.UserID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, video, nil)
}

func (h *ContentHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	videos, err := h.service.ListVideos(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, videos, &model.Meta{Total: len(videos)})
}

func (h *ContentHandler) ReportAnalytics(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	var payload model.ReportAnalyticsRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := h.service.ReportAnalytics(r.Context(), caller.UserID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, snapshot, nil)
}

func (h *ContentHandler) ListAnalytics(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	snapshots, err := h.service.ListAnalytics(r.Context(), caller.UserID, r.URL.Query().Get("video_id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, snapshots, &model.Meta{Total: len(snapshots)})
}

func (h *ContentHandler) ReportRun(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	var payload model.ReportRunRequest
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	run, err := h.service.ReportRun(r.Context(), caller.UserID, caller.ViaService, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, run, nil)
}

func (h *ContentHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	caller, ok := actor(r)
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	runs, err := h.service.ListRuns(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, runs, &model.Meta{Total: len(runs)})
}
