package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"justgov/internal/config"
	"justgov/internal/pkg/response"
	"justgov/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

const refreshCookieName = "refresh_token"

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service *Service
	limiter *ratelimit.Limiter
	cfg     *config.Config
}

// NewHandler creates a new auth handler with injected service
func NewHandler(service *Service, limiter *ratelimit.Limiter, cfg *config.Config) *Handler {
	return &Handler{
		service: service,
		limiter: limiter,
		cfg:     cfg,
	}
}

func (h *Handler) RegisterPublicRoutes(v1 *gin.RouterGroup) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", h.limiter.ByIP("register", h.cfg.RegisterIPLimit, h.cfg.RegisterIPWindow), h.Register)
		authGroup.POST("/login", h.limiter.ByIP("login", h.cfg.LoginIPLimit, h.cfg.LoginIPWindow), h.Login)
		authGroup.POST("/refresh", h.limiter.ByIP("refresh", h.cfg.RefreshIPLimit, h.cfg.RefreshIPWindow), h.Refresh)
		authGroup.POST("/logout", h.Logout)
	}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	userGroup := protected.Group("/users")
	{
		userGroup.GET("/me", h.GetMe)
	}
}

// Register creates a new account.
// @Summary		Register
// @Tags		Auth
// @Param		request	body	RegisterRequest	true	"email, password, name"
// @Success		201	{object}	map[string]interface{}
// @Failure		409	{object}	map[string]interface{} "email already registered"
// @Router		/auth/register [POST]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailAlreadyExists):
			response.Fail(c, http.StatusConflict, "EMAIL_EXISTS", "This email is already registered")
		case h.rateLimited(c, err):
		default:
			response.Fail(c, http.StatusInternalServerError, "REGISTRATION_FAILED", "Failed to register")
		}
		return
	}

	response.OK(c, http.StatusCreated, gin.H{
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

// Login authenticates a user and starts a new refresh-session family.
// The refresh token travels only in an HttpOnly cookie; the access token is
// in the body.
// @Summary		Login
// @Tags		Auth
// @Param		request	body	LoginRequest	true	"email, password"
// @Success		200	{object}	map[string]interface{}
// @Failure		401	{object}	map[string]interface{} "wrong email or password"
// @Router		/auth/login [POST]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	result, err := h.service.Login(c.Request.Context(), req, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.Fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email or password is incorrect")
		case h.rateLimited(c, err):
		default:
			response.Fail(c, http.StatusInternalServerError, "LOGIN_FAILED", "Failed to login")
		}
		return
	}

	h.setRefreshCookie(c, result.RefreshToken, result.RefreshExpiresAt)

	response.OK(c, http.StatusOK, gin.H{
		"user": gin.H{
			"id":    result.User.ID,
			"email": result.User.Email,
			"name":  result.User.Name,
		},
		"access_token": result.AccessToken,
	})
}

// Refresh rotates the refresh token from the cookie and returns a new access
// token. No request body.
// @Summary		Refresh token
// @Tags		Auth
// @Success		200	{object}	map[string]interface{}
// @Failure		401	{object}	map[string]interface{} "invalid, expired or revoked token"
// @Router		/auth/refresh [POST]
func (h *Handler) Refresh(c *gin.Context) {
	refreshRaw, err := c.Cookie(refreshCookieName)
	if err != nil || strings.TrimSpace(refreshRaw) == "" {
		response.Fail(c, http.StatusUnauthorized, "TOKEN_INVALID", "Refresh token is missing")
		return
	}

	result, err := h.service.Refresh(c.Request.Context(), refreshRaw, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenInvalid):
			response.Fail(c, http.StatusUnauthorized, "TOKEN_INVALID", "Refresh token is invalid")
		case errors.Is(err, ErrTokenExpired):
			response.Fail(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Refresh token is expired")
		case errors.Is(err, ErrTokenReused):
			// Family is already revoked; force a full re-authentication.
			h.clearRefreshCookie(c)
			response.Fail(c, http.StatusUnauthorized, "TOKEN_REVOKED", "Refresh token reuse detected")
		default:
			response.Fail(c, http.StatusInternalServerError, "REFRESH_FAILED", "Failed to refresh session")
		}
		return
	}

	h.setRefreshCookie(c, result.RefreshToken, result.RefreshExpiresAt)

	response.OK(c, http.StatusOK, gin.H{
		"access_token": result.AccessToken,
	})
}

// Logout revokes the session named by the cookie and clears it. Succeeds
// even without a cookie.
// @Summary		Logout
// @Tags		Auth
// @Success		200	{object}	map[string]interface{}
// @Router		/auth/logout [POST]
func (h *Handler) Logout(c *gin.Context) {
	refreshRaw, err := c.Cookie(refreshCookieName)
	if err == nil && strings.TrimSpace(refreshRaw) != "" {
		if logoutErr := h.service.Logout(c.Request.Context(), refreshRaw); logoutErr != nil {
			response.Fail(c, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to logout")
			return
		}
	}

	h.clearRefreshCookie(c)
	response.OK(c, http.StatusOK, gin.H{})
}

// GetMe returns the profile of the authenticated user.
// @Summary		Current user
// @Tags		Auth
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}
// @Router		/users/me [GET]
func (h *Handler) GetMe(c *gin.Context) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		response.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}
	userID := userIDAny.(int64)

	user, err := h.service.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}

	response.OK(c, http.StatusOK, gin.H{
		"user": user,
	})
}

// rateLimited maps a limiter rejection to 429 with a Retry-After hint.
// Returns false when err is not a rate-limit error so the switch can fall
// through.
func (h *Handler) rateLimited(c *gin.Context, err error) bool {
	var rlErr *ratelimit.Error
	if !errors.As(err, &rlErr) {
		return false
	}
	retrySec := int64(rlErr.RetryAfter.Seconds())
	if retrySec < 1 {
		retrySec = 1
	}
	c.Header("Retry-After", strconv.FormatInt(retrySec, 10))
	response.Fail(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
	return true
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(parseSameSite(h.cfg.CookieSameSite))
	c.SetCookie(refreshCookieName, token, maxAge, h.cfg.CookiePath, "", h.cfg.CookieSecure, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(parseSameSite(h.cfg.CookieSameSite))
	c.SetCookie(refreshCookieName, "", -1, h.cfg.CookiePath, "", h.cfg.CookieSecure, true)
}

func parseSameSite(mode string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
