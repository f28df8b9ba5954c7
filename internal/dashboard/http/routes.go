package dashboardhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const sourceHeader = "X-Record-Source"

// MountRoutes registers dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/api/dashboard", func(r chi.Router) {
		r.Get("/", h.handleDashboard)
		r.Get("/leaderboard", h.handleLeaderboard)
		r.Get("/events", h.handleEvents)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/snapshot/bump", h.handleBump)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if source := strings.TrimSpace(r.Header.Get(sourceHeader)); source != "" {
		return "source:" + source, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
