package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/solacestudio/studio-reservation/internal/handler"    // import the handlers that implement business logic
	"github.com/solacestudio/studio-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
	"github.com/solacestudio/studio-reservation/internal/model"      // role constants
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// The health endpoint is used by load balancers or monitoring systems to
	// verify that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while the protected profile endpoint lives under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleMember, model.RoleStaff))
	auth.GET("/me", a.Me)
}

// RegisterSchedule registers the unauthenticated class schedule endpoints.
// These routes apply no JWT or role middleware so guests can browse before
// signing up.  The optional cache middleware is applied by the caller.
func RegisterSchedule(e *echo.Echo, s *handler.ScheduleHandler, mw ...echo.MiddlewareFunc) {
	e.GET("/v1/sessions", s.List, mw...)
	e.GET("/v1/sessions/:id", s.Get, mw...)
}

// RegisterBooking registers the member-facing reservation endpoints.  Every
// route requires a valid access token; both roles may book and manage their
// own reservations.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleMember, model.RoleStaff))

	g.POST("/sessions/:id/book", b.Book)
	g.GET("/my-reservations", b.ListMine)
	g.GET("/reservations/:id", b.Get)
	g.DELETE("/reservations/:id", b.Cancel)
	g.POST("/reservations/:id/check-in", b.CheckIn)
}

// RegisterStaff registers the staff-only endpoints for session scheduling,
// rosters, attendance outcomes and credit grants.
func RegisterStaff(e *echo.Echo, s *handler.StaffHandler, jwtSecret string) {
	g := e.Group("/v1/staff")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleStaff))

	g.POST("/sessions", s.CreateSession)
	g.DELETE("/sessions/:id", s.DeactivateSession)
	g.GET("/sessions/:id/roster", s.Roster)
	g.POST("/reservations/:id/no-show", s.MarkNoShow)
	g.POST("/reservations/:id/complete", s.Complete)
	g.POST("/members/:id/credits", s.GrantCredits)
}
