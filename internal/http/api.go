package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"local-market/internal/metrics"
	"local-market/internal/service"
)

const (
	// SessionCookie is the cookie carrying the session token.
	SessionCookie = "token"

	sessionCookieMaxAge = int(service.SessionTTL / time.Second)
)

// Config carries transport level settings for Handler.
type Config struct {
	SecureCookies bool
	AllowOrigin   string
	AuthRate      rate.Limit
	AuthBurst     int
	Logger        logrus.FieldLogger
	Metrics       metrics.Recorder
	Gatherer      prometheus.Gatherer
}

// Handler wires HTTP routes to the auth services.
type Handler struct {
	cfg     Config
	users   service.UserService
	tokens  service.TokenService
	limiter *ipRateLimiter
}

func NewHandler(cfg Config, users service.UserService, tokens service.TokenService) *Handler {
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "*"
	}
	if cfg.AuthRate <= 0 {
		cfg.AuthRate = rate.Limit(1)
	}
	if cfg.AuthBurst <= 0 {
		cfg.AuthBurst = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	return &Handler{
		cfg:     cfg,
		users:   users,
		tokens:  tokens,
		limiter: newIPRateLimiter(cfg.AuthRate, cfg.AuthBurst, 10*time.Minute),
	}
}

// Close stops background work owned by the handler.
func (h *Handler) Close() {
	h.limiter.Stop()
}

// TrustProxies limits which peers may set the client address through
// X-Forwarded-For. With none given, the TCP peer address is always used.
func TrustProxies(router *gin.Engine, proxies []string) error {
	if len(proxies) == 0 {
		proxies = nil
	}
	if err := router.SetTrustedProxies(proxies); err != nil {
		return fmt.Errorf("set trusted proxies: %w", err)
	}
	return nil
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.cfg.Logger), corsMiddleware(h.cfg.AllowOrigin))

	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.rateLimit(h.cfg.Metrics.RecordSignup), h.signup)
		auth.POST("/login", h.rateLimit(h.cfg.Metrics.RecordLogin), h.login)
		auth.POST("/logout", h.logout)
		auth.GET("/me", h.requireSession(), h.me)
	}

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})
	if h.cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(h.cfg.Gatherer)))
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type SignupResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.cfg.Metrics.RecordSignup(metrics.OutcomeInvalidInput)
		h.respondError(c, service.ErrValidation)
		return
	}

	user, err := h.users.Signup(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.cfg.Metrics.RecordSignup(outcomeOf(err))
		h.respondError(c, err)
		return
	}

	h.cfg.Metrics.RecordSignup(metrics.OutcomeSuccess)
	loggerFrom(c, h.cfg.Logger).WithField("user_id", user.ID).Info("user signed up")
	c.JSON(http.StatusCreated, SignupResponse{
		Message: "User created",
		User:    UserResponse{ID: user.ID, Email: user.Email},
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.cfg.Metrics.RecordLogin(metrics.OutcomeInvalidInput)
		h.respondError(c, service.ErrValidation)
		return
	}

	token, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.cfg.Metrics.RecordLogin(outcomeOf(err))
		h.respondError(c, err)
		return
	}

	h.cfg.Metrics.RecordLogin(metrics.OutcomeSuccess)
	h.setSessionCookie(c, token, sessionCookieMaxAge)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
}

// logout only clears the cookie; a copied token stays valid until it expires.
func (h *Handler) logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) me(c *gin.Context) {
	userID, ok := UserIDFromContext(c)
	if !ok {
		h.respondError(c, service.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID})
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, value, maxAge, "/", "", h.cfg.SecureCookies, true)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, message := classifyError(err)
	entry := loggerFrom(c, h.cfg.Logger).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrPasswordTooLong):
		return http.StatusBadRequest, "Password must be at most 72 bytes"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "Email and password required"
	case errors.Is(err, service.ErrDuplicateUser):
		return http.StatusBadRequest, "User already exists"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return metrics.OutcomeInvalidInput
	case errors.Is(err, service.ErrDuplicateUser):
		return metrics.OutcomeDuplicate
	case errors.Is(err, service.ErrInvalidCredentials):
		return metrics.OutcomeInvalidCreds
	case errors.Is(err, service.ErrConfiguration):
		return metrics.OutcomeMisconfigured
	default:
		return metrics.OutcomeError
	}
}
