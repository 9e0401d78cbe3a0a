package handler

import (
	"github.com/Async-Ng/ElecLab-sub001/internal/middleware"
	"github.com/Async-Ng/ElecLab-sub001/internal/routing"
	"github.com/gin-gonic/gin"
)

const contextKeyScope = "route_scope"

func withScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKeyScope, scope)
		c.Next()
	}
}

func routeScope(c *gin.Context) string {
	return c.GetString(contextKeyScope)
}

// RegisterRoutes mounts both route families under api (normally /api/v1).
// The elevated family requires an elevated role; the restricted family is
// open to any identified caller and lists only the caller's own requests.
func RegisterRoutes(api *gin.RouterGroup, h *Handlers, jwtSecret string) {
	RegisterValidators()

	admin := api.Group("/"+routing.ScopeElevated,
		middleware.Identity(jwtSecret),
		middleware.RequireElevated(),
		withScope(routing.ScopeElevated),
	)
	h.registerRequests(admin)
	admin.GET("/materials", h.Catalog.Materials)
	admin.GET("/rooms", h.Catalog.Rooms)
	admin.GET("/users", h.Catalog.Users)

	user := api.Group("/"+routing.ScopeRestricted,
		middleware.Identity(jwtSecret),
		withScope(routing.ScopeRestricted),
	)
	h.registerRequests(user)
	user.GET("/materials", h.Catalog.Materials)
	user.GET("/rooms", h.Catalog.Rooms)
}

func (h *Handlers) registerRequests(g *gin.RouterGroup) {
	requests := g.Group("/requests")
	{
		requests.GET("", h.Request.List)
		requests.POST("", h.Request.Create)
		requests.GET("/export", h.Request.Export)
		requests.GET("/events", h.SSE.Stream)
		requests.GET("/:id", h.Request.Get)
		requests.PUT("/:id", h.Request.Update)
		requests.DELETE("/:id", h.Request.Delete)
		requests.GET("/:id/activities", h.Request.Activities)
		requests.PUT("/:id/review", h.Request.Review)
		requests.PUT("/:id/handle", h.Request.Handle)
		requests.PUT("/:id/complete", h.Request.Complete)
	}
}
