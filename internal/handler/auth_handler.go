package handler

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/the-outlaw-004/medai-backend/internal/model"
	"github.com/the-outlaw-004/medai-backend/internal/service"
	"github.com/the-outlaw-004/medai-backend/pkg/response"
)

type AuthHandler struct {
	service   *service.AuthService
	validator *validator.Validate
}

func NewAuthHandler(svc *service.AuthService, v *validator.Validate) *AuthHandler {
	return &AuthHandler{service: svc, validator: v}
}

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req model.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Email and password required", err.Error())
	}

	user, err := h.service.Signup(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			return response.ValidationError(c, "Email already registered", nil)
		}
		log.Printf("Signup failed: %v", err)
		return response.ServiceError(c, "Failed to create account")
	}

	return response.Created(c, model.SignupResponse{ID: user.ID, Email: user.Email})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req model.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Email and password required", err.Error())
	}

	tokens, err := h.service.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return response.Unauthorized(c, "Invalid credentials")
		}
		log.Printf("Login failed: %v", err)
		return response.ServiceError(c, "Failed to log in")
	}

	return response.OK(c, tokens)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req model.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Refresh token required", err.Error())
	}

	tokens, err := h.service.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			return response.Unauthorized(c, "Invalid or expired refresh token")
		}
		log.Printf("Refresh failed: %v", err)
		return response.ServiceError(c, "Failed to refresh tokens")
	}

	return response.OK(c, tokens)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req model.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Refresh token required", err.Error())
	}

	if err := h.service.Logout(c.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			return response.Unauthorized(c, "Invalid or expired refresh token")
		}
		log.Printf("Logout failed: %v", err)
		return response.ServiceError(c, "Failed to log out")
	}

	return response.NoContent(c)
}
