// Package server exposes the pipeline, store, and tile renderer over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/render"
	"github.com/sells-group/terrasight/internal/scheduler"
	"github.com/sells-group/terrasight/internal/store"
)

// Trigger starts pipeline runs and reports scheduler state.
type Trigger interface {
	TriggerRun(force bool) (string, error)
	Status() scheduler.Status
}

// Recomputer recalculates a stored scene's index result.
type Recomputer interface {
	Recompute(ctx context.Context, productID string, idx model.IndexType, force bool) (*model.IndexResult, error)
}

// Server holds the HTTP handler dependencies.
type Server struct {
	store      store.Store
	sched      Trigger
	recomputer Recomputer
	renderer   *render.Renderer
}

// New creates a Server.
func New(st store.Store, sched Trigger, rec Recomputer, renderer *render.Renderer) *Server {
	return &Server{
		store:      st,
		sched:      sched,
		recomputer: rec,
		renderer:   renderer,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", s.handleStatus)
		api.Post("/runs", s.handleTriggerRun)
		api.Get("/scenes", s.handleListScenes)
		api.Post("/scenes/{productID}/recompute", s.handleRecompute)
		api.Get("/regions/{name}/series", s.handleRegionSeries)
		api.Get("/tiles/{index}/{z}/{x}/{y}.png", s.handleTile)
	})

	return r
}
