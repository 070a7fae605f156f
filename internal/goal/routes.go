package goal

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/metrics", h.Metrics)
	r.Get("/analytics", h.Analytics)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)

		r.Post("/adjust", h.Adjust)
		r.Post("/recalculate", h.Recalculate)
		r.Get("/forecast", h.Forecast)
		r.Get("/history", h.History)
		r.Get("/hierarchy", h.Hierarchy)
		r.Get("/children", h.Children)
		r.Put("/parent", h.Link)
		r.Delete("/parent", h.Unlink)
	})

	return r
}
