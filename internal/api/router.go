package api

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	jobRoute        = "/job/{" + jobIDParam + "}"
)

//go:embed static/index.html
var indexPage []byte

// NewRouter mounts the handler routes behind request ids, panic recovery,
// access logging and CORS.
func NewRouter(handler *Handler, corsCfg config.CORSConfig, log *logger.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsCfg.AllowedOrigins,
		AllowedMethods:   corsCfg.AllowedMethods,
		AllowedHeaders:   corsCfg.AllowedHeaders,
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           corsCfg.MaxAgeSeconds,
	}))

	router.Get("/", serveIndex(log))
	router.Get("/health", handler.Health)
	router.Post("/generate", handler.Generate)

	router.Get(jobRoute, handler.GetJob)
	router.Delete(jobRoute, handler.DeleteJob)
	router.Get(jobRoute+"/status", handler.JobStatus)

	return router
}

func serveIndex(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeHTML)
		w.WriteHeader(http.StatusOK)

		_, writeErr := w.Write(indexPage)
		if writeErr != nil {
			log.Warn("Failed to write index page: %v", writeErr)
		}
	}
}

// RequestLogger writes one access line per request through log.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(wrapped, r)

			log.Info("[%s] %s %s %d %dB %s",
				middleware.GetReqID(r.Context()),
				r.Method,
				r.URL.Path,
				wrapped.Status(),
				wrapped.BytesWritten(),
				time.Since(started),
			)
		})
	}
}
