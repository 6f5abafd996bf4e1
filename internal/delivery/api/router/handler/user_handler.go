package handler

import (
	"log/slog"
	"net/http"

	"accounts/internal/delivery/api/response"
	"accounts/internal/domain/entity"
	"accounts/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// UserHandlerParams holds dependencies for UserHandler, injected by Fx.
type UserHandlerParams struct {
	fx.In

	AccountUC usecase.AccountUsecase
	Logger    *slog.Logger
}

// UserHandler serves CRUD operations on user records
type UserHandler struct {
	accountUC usecase.AccountUsecase
	logger    *slog.Logger
}

// NewUserHandler is the constructor for UserHandler
func NewUserHandler(params UserHandlerParams) *UserHandler {
	return &UserHandler{
		accountUC: params.AccountUC,
		logger:    params.Logger,
	}
}

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest = RegisterRequest

// UpdateUserRequest represents the request body for a partial update.
// Omitted fields are left unchanged.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name" validate:"omitnil,min=1,max=100"`
	LastName  *string `json:"last_name" validate:"omitnil,min=1,max=100"`
	Email     *string `json:"email" validate:"omitnil,email,max=255"`
	Password  *string `json:"password" validate:"omitnil,min=8,max_bytes=72,has_upper"`
}

// ListUsers returns every user
func (h *UserHandler) ListUsers(c echo.Context) error {
	users, err := h.accountUC.ListAll(c.Request().Context())
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, users)
}

// GetUser returns a single user
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid user ID")
	}

	user, err := h.accountUC.GetByID(c.Request().Context(), id)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, user)
}

// CreateUser creates a user record
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid user input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	user, err := h.accountUC.Create(c.Request().Context(), &usecase.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusCreated, user)
}

// UpdateUser applies a partial update to a user
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid user ID")
	}

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid user input")
	}

	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	user, err := h.accountUC.Update(c.Request().Context(), id, entity.UserPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, user)
}

// DeleteUser removes a user and returns the removed record
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_ID", "Invalid user ID")
	}

	user, err := h.accountUC.Delete(c.Request().Context(), id)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, user)
}
