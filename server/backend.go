// Package server exposes the app over a small REST surface: city
// autocomplete, daily fortunes and transits, profile management, and the chat
// assistant. Single user, no authentication.
package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/luckystar-app/luckystar"
	"github.com/luckystar-app/luckystar/llm"
	"github.com/luckystar-app/luckystar/store"
)

// Backend wires the services behind the REST routes.
type Backend struct {
	gaz       *gazetteer.Gazetteer
	store     *store.Store
	assistant llm.Assistant
}

// NewBackend builds the backend from its collaborators.
func NewBackend(gaz *gazetteer.Gazetteer, st *store.Store, assistant llm.Assistant) *Backend {
	return &Backend{gaz: gaz, store: st, assistant: assistant}
}

// Routes returns the full API router.
func (b *Backend) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Mount("/cities", b.cityRoutes())
	r.Mount("/profiles", b.profileRoutes())
	r.Mount("/chat", b.chatRoutes())

	r.Get("/signs", WrapRestHandler(b.ListSigns))
	r.Get("/fortune/{sign}", WrapRestHandler(b.GetDailyFortune))
	r.Get("/transits/{sign}", WrapRestHandler(b.GetTransits))

	return r
}
