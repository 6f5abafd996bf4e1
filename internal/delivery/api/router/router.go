// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"accounts/internal/delivery/api/middleware"
	"accounts/internal/delivery/api/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	AuthMiddleware *middleware.AuthMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler    *handler.AuthHandler
	userHandler    *handler.UserHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:    params.AuthHandler,
		userHandler:    params.UserHandler,
		authMiddleware: params.AuthMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	authGroup := e.Group("/auth")
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.POST("/change-password", r.authHandler.ChangePassword, r.authMiddleware.Authenticate)
	}

	usersGroup := e.Group("/users")
	{
		usersGroup.GET("", r.userHandler.ListUsers)
		usersGroup.POST("", r.userHandler.CreateUser)
		usersGroup.GET("/:id", r.userHandler.GetUser)
		usersGroup.PATCH("/:id", r.userHandler.UpdateUser)
		usersGroup.DELETE("/:id", r.userHandler.DeleteUser)
	}
}
