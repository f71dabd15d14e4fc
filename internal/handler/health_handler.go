package handler

import (
	"context"
	"net/http"
	"time"

	"cronostudio/pkg/apierror"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	db healthChecker
}

func NewHealthHandler(db healthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "ok"}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Health(ctx); err != nil {
			writeError(w, apierror.New("DATABASE_UNREACHABLE", "database is unreachable", "", http.StatusServiceUnavailable))
			return
		}
	}

	writeSuccess(w, http.StatusOK, status, nil)
}
