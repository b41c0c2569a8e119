package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kinnevo/fastinnovation-api/database"
	"github.com/kinnevo/fastinnovation-api/model"
	"github.com/kinnevo/fastinnovation-api/utils/auth"
	"github.com/kinnevo/fastinnovation-api/utils/response"
	"github.com/kinnevo/fastinnovation-api/utils/validation"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	store      database.Storage
	jwtManager *auth.JWTManager
	validator  *validation.Validator
}

func NewAuthHandler(store database.Storage, jwtManager *auth.JWTManager) *AuthHandler {
	return &AuthHandler{
		store:      store,
		jwtManager: jwtManager,
		validator:  validation.NewValidator(),
	}
}

// RegisterRequest is the POST body for registration.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"max=255"`
}

// LoginRequest is the POST body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if _, err := h.store.GetUserByEmail(c.Context(), req.Email); err == nil {
		return response.Conflict(c, "Email is already registered")
	} else if !database.IsNotFound(err) {
		return response.InternalServerError(c, "Failed to check existing user")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	user := &model.User{
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
	}
	if err := h.store.CreateUser(c.Context(), user); err != nil {
		return response.InternalServerError(c, "Failed to create user")
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate token")
	}

	return response.Created(c, fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	user, err := h.store.GetUserByEmail(c.Context(), req.Email)
	if database.IsNotFound(err) {
		return response.Unauthorized(c, "Invalid email or password")
	}
	if err != nil {
		return response.InternalServerError(c, "Failed to load user")
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		return response.Unauthorized(c, "Invalid email or password")
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate token")
	}

	return response.Success(c, fiber.Map{
		"token": token,
		"user":  user,
	})
}
