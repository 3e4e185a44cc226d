package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/codeforge-rag/service/internal/middleware"
)

// RequestTimeout bounds every request's outermost deadline (spec §5:
// requests propagate a deadline to all downstream calls).
const RequestTimeout = 30 * time.Second

// NewRouter wires chi's request-scoped middleware (teacher's code-warden
// pattern) underneath CORS, security headers, and rate limiting, then routes
// the three facade operations plus the root info endpoint.
func NewRouter(h *Handler, cors *middleware.CORSMiddleware, security *middleware.SecurityMiddleware, rateLimit *middleware.RateLimitMiddleware) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(RequestTimeout))
	r.Use(cors.Middleware)
	r.Use(security.Middleware)
	if rateLimit != nil {
		r.Use(rateLimit.Middleware)
	}

	r.Get("/", h.Root)
	r.Post("/build_embeddings", h.BuildEmbeddings)
	r.Post("/query", h.Query)
	r.Post("/summarize", h.Summarize)

	return r
}
