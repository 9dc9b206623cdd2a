package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-finder/internal/scrape"
	"github.com/kozaktomas/face-finder/internal/web/handlers"
	"github.com/kozaktomas/face-finder/internal/web/middleware"
)

func (s *Server) setupRoutes(engine handlers.FaceEngine, fetcher handlers.SiteFetcher, matchPipeline handlers.MatchPipeline, sites []scrape.SiteConfig) {
	faceHandler := handlers.NewFaceHandler(engine, s.store)
	videoHandler := handlers.NewVideoHandler(s.store, fetcher, matchPipeline, sites)
	searchHandler := handlers.NewSearchHandler(s.store)
	uploadHandler := handlers.NewUploadHandler(faceHandler, s.config.Web.MaxUploadSize)

	limiter := middleware.NewRateLimiter(s.config.Web.RateLimitMax, s.config.Web.RateLimitWindow)

	// Liveness probe (no auth, no rate limit)
	s.router.Get("/api/health", handlers.Health)

	// RPC operations: POST /api/<router>.<op> with a JSON body.
	s.router.Route("/api", func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Use(middleware.Auth(s.config.Web.SessionSecret))

		r.Post("/face.processImage", faceHandler.ProcessImage)
		r.Post("/face.getSession", faceHandler.GetSession)
		r.Post("/face.updateThreshold", faceHandler.UpdateThreshold)
		r.Post("/face.deleteSession", faceHandler.DeleteSession)
		r.Post("/face.healthCheck", faceHandler.HealthCheck)

		r.Post("/video.fetchFromSites", videoHandler.FetchFromSites)

		r.Post("/search.getResults", searchHandler.GetResults)
		r.Post("/search.configure", searchHandler.Configure)

		// Browser-facing multipart ingest; same chain as face.processImage.
		r.Post("/upload", uploadHandler.Upload)
	})
}
