package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/pixmo/internal/api/handlers/job"
	"github.com/aliskhannn/pixmo/internal/api/handlers/library"
	"github.com/aliskhannn/pixmo/internal/api/handlers/session"
	"github.com/aliskhannn/pixmo/internal/api/handlers/target"
	"github.com/aliskhannn/pixmo/internal/api/respond"
	"github.com/aliskhannn/pixmo/internal/middleware"
	"github.com/aliskhannn/pixmo/internal/store"
)

// Setup wires all API routes. Entity routes sit behind the session
// middleware so every request refreshes the caller's TTL.
func Setup(sessions *store.Sessions, t *target.Handler, l *library.Handler, j *job.Handler, s *session.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.GET("/health", func(c *ginext.Context) {
		respond.OK(c, map[string]string{"status": "ok"})
	})
	api.POST("/session/close", s.Close)

	authed := api.Group("")
	authed.Use(middleware.Session(sessions))

	authed.POST("/targets", t.Upload)
	authed.GET("/targets", t.List)
	authed.GET("/targets/:id/file", t.File)
	authed.DELETE("/targets/:id", t.Delete)

	authed.POST("/libraries", l.Upload)
	authed.GET("/libraries", l.List)
	authed.GET("/libraries/:id", l.Get)
	authed.DELETE("/libraries/:id", l.Delete)

	authed.POST("/jobs", j.Create)
	authed.GET("/jobs/:id", j.Get)
	authed.GET("/jobs/:id/result", j.Result)

	return r
}
