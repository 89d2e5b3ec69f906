package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"elearn-portal/internal/events"
	"elearn-portal/internal/models"
	"elearn-portal/internal/services"
	"elearn-portal/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	userService *services.UserService
	jwtManager  *auth.JWTManager
	bus         *events.Bus
	logger      *logrus.Logger
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required,min=2,max=100"`
	Role     string `json:"role" binding:"required,oneof=student teacher parent staff"`
	Phone    string `json:"phone" binding:"omitempty,min=10,max=15"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(userService *services.UserService, jwtManager *auth.JWTManager, bus *events.Bus, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtManager:  jwtManager,
		bus:         bus,
		logger:      logger,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	user, err := h.userService.CreateUser(ctx, services.CreateUserParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     models.UserRole(req.Role),
		Phone:    req.Phone,
	})
	if errors.Is(err, services.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Email is already registered",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error creating user",
		})
		return
	}

	// Fired after the user write committed. Subscribers (the registration
	// fan-out among them) absorb their own failures, so a notification
	// problem can never undo the registration.
	h.bus.PublishUserCreated(ctx, events.UserCreated{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	})

	token, err := h.jwtManager.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error generating token",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":  user,
		"token": token,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	user, err := h.userService.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid email or password",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to authenticate user")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error logging in",
		})
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error generating token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  user,
		"token": token,
	})
}
