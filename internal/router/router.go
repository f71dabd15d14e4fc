package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cronostudio/internal/config"
	"cronostudio/internal/handler"
	"cronostudio/internal/middleware"
)

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	serviceAuth *middleware.ServiceAuth,
	rateLimiter *middleware.RateLimiter,
	authHandler *handler.AuthHandler,
	profileHandler *handler.ProfileHandler,
	contentHandler *handler.ContentHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/healthz", healthHandler.Check)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(rateLimiter.Limit(middleware.PolicyAPI))

		api.Route("/auth", func(auth chi.Router) {
			// Credential endpoints carry the strictest budget; they are
			// the brute-force surface.
			auth.With(rateLimiter.Limit(middleware.PolicyAuth)).Post("/register", authHandler.Register)
			auth.With(rateLimiter.Limit(middleware.PolicyAuth)).Post("/login", authHandler.Login)
			auth.With(rateLimiter.Limit(middleware.PolicyAuth)).Post("/google", authHandler.LoginWithGoogle)
			auth.Post("/refresh", authHandler.Refresh)
			auth.Post("/logout", authHandler.Logout)

			auth.Group(func(me chi.Router) {
				me.Use(authMiddleware.RequireAuth)
				me.Get("/me", profileHandler.Me)
				me.Get("/profile", profileHandler.Me)
				me.Patch("/profile", profileHandler.Update)
				me.Delete("/profile", profileHandler.Delete)
				me.Post("/password", profileHandler.ChangePassword)
			})
		})

		// Content routes admit either an owner user or the automation
		// service via the webhook secret.
		api.Group(func(content chi.Router) {
			content.Use(serviceAuth.RequireServiceOrOwner)
			content.Get("/channels", contentHandler.ListChannels)
			content.Post("/channels", contentHandler.CreateChannel)
			content.Get("/videos", contentHandler.ListVideos)
			content.Post("/videos", contentHandler.CreateVideo)
			content.Get("/analytics", contentHandler.ListAnalytics)
			content.Post("/analytics", contentHandler.ReportAnalytics)
			content.Get("/automation-runs", contentHandler.ListRuns)
			content.Post("/automation-runs", contentHandler.ReportRun)
		})
	})

	return r
}
