package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teranos/quotesearch/logger"
)

// Handler builds the router. It is safe to call more than once.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.requestLogger)

	r.Get("/api/health", s.HandleHealth)
	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", s.HandleCreateJob)
		r.Get("/", s.HandleListJobs)
		r.Get("/{id}", s.HandleGetJob)
		r.Delete("/{id}", s.HandleCancelJob)
	})
	r.Get("/ws", s.HandleWebSocket)

	return r
}

// requestLogger logs one line per request with chi's request id
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqID := middleware.GetReqID(r.Context())
		ctx := logger.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.With(logger.FieldsFromContext(ctx)...).Debugw("HTTP request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, ww.Status(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	})
}
