package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter wires the maintenance endpoints. Everything under /products and
// /channels requires a bearer token; /health does not, so the probe needs no
// credentials. readiness reports whether the database is reachable.
func NewRouter(h *Handler, jwtSecret string, readiness func() bool, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))

	auth := Authenticator(jwtSecret)

	r.Route("/products/{productID}", func(r chi.Router) {
		r.Use(auth)
		r.Post("/channels", h.PostChannel)
		r.Post("/channels/end", h.PostChannelEnd)
		r.Put("/thresholds", h.PutThreshold)
		r.Delete("/thresholds", h.DeleteThreshold)
		r.Put("/attributes/{attributeID}", h.PutAttribute)
		r.Put("/claims/{claimCode}", h.PutClaim)
		r.Delete("/claims/{claimCode}", h.DeleteClaim)
	})

	r.With(auth).Post("/channels/batch", h.PostChannelBatch)

	r.Get("/health", healthHandler(readiness))

	return r
}

func healthHandler(readiness func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if readiness != nil && !readiness() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
