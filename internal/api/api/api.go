package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"venuebook/cmd/middleware"
	"venuebook/internal/service"
	"venuebook/internal/session"
)

type Routers struct {
	Service  service.Service
	Sessions *session.Manager
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	app.GET("/health", func(c *ginext.Context) {
		c.JSON(200, map[string]bool{"ok": true})
	})

	// Public: auth bootstrap and calendar feed.
	app.POST("/auth/magic/request", r.Service.MagicRequest)
	app.POST("/auth/magic/consume", r.Service.MagicConsume)
	app.POST("/auth/logout", r.Service.Logout)
	app.GET("/cal/approved.ics", r.Service.Calendar)

	authed := app.Group("/", r.Sessions.RequireAuth())
	authed.GET("/me", r.Service.Me)

	ref := authed.Group("/ref")
	ref.GET("/groups", r.Service.ListGroupsRef)
	ref.GET("/venues", r.Service.ListVenuesRef)
	ref.GET("/services", r.Service.ListServicesRef)

	apiGroup := authed.Group("/v1")
	apiGroup.POST("/events", r.Service.CreateEvent)
	apiGroup.POST("/events/:id/submit", r.Service.SubmitEvent)
	apiGroup.POST("/events/:id/decision", r.Service.DecideEvent)
	apiGroup.PATCH("/events/:id", r.Service.EditEvent)
	apiGroup.DELETE("/events/:id", r.Service.DeleteEvent)
	apiGroup.POST("/events/:id/services", r.Service.AttachService)
	apiGroup.POST("/events/:id/attachments", r.Service.AttachFile)
	apiGroup.GET("/my/events", r.Service.ListMine)
	apiGroup.GET("/inbox/submissions", r.Service.ListInbox)
	apiGroup.GET("/events/approved", r.Service.ListApproved)

	admin := authed.Group("/admin")
	admin.GET("/users", r.Service.ListUsers)
	admin.POST("/users/role", r.Service.UpsertUserRole)
	admin.GET("/groups", r.Service.ListGroups)
	admin.POST("/groups", r.Service.CreateGroup)
	admin.PATCH("/groups/:id", r.Service.PatchGroup)
	admin.DELETE("/groups/:id", r.Service.DeleteGroup)
	admin.GET("/venues", r.Service.ListVenues)
	admin.POST("/venues", r.Service.CreateVenue)
	admin.PATCH("/venues/:id", r.Service.PatchVenue)
	admin.DELETE("/venues/:id", r.Service.DeleteVenue)

	return app
}
