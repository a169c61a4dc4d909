// Package handler serves the OAuth callback page and the admin HTTP API.
package handler

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"zahra/backend/internal/linking"
	"zahra/backend/internal/localization"
	"zahra/backend/internal/models"
	"zahra/backend/internal/users"
	"zahra/backend/internal/verifier"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

type CaseService interface {
	GetCase(ctx context.Context, rawID string) (*models.Case, error)
	ListCasesForUser(ctx context.Context, communityID, targetID string) ([]models.Case, error)
	Pardon(ctx context.Context, rawID, communityID string) (*models.Case, error)
}

type UserService interface {
	GetProfile(ctx context.Context, userID string) (*users.Profile, error)
}

type LinkService interface {
	Complete(ctx context.Context, cb linking.Callback) (*linking.Result, error)
	ReasonText(p models.Platform, reason verifier.Reason, username string) string
}

// Pinger is anything /healthz should check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the services the HTTP surface talks to.
type Handler struct {
	Cases  CaseService
	Users  UserService
	Links  LinkService
	Texts  *localization.Localizer
	Logger *slog.Logger

	// JWTSecret signs admin API tokens. An empty secret disables the admin API.
	JWTSecret []byte
	// Checks are pinged by /healthz, keyed by a short name such as "postgres".
	Checks map[string]Pinger
}

func NewHandler(cases CaseService, users UserService, links LinkService, texts *localization.Localizer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Cases:  cases,
		Users:  users,
		Links:  links,
		Texts:  texts,
		Logger: logger,
		Checks: map[string]Pinger{},
	}
}

// RouterOptions carries the optional pieces of NewRouter.
type RouterOptions struct {
	// Limiter throttles the OAuth callback per client IP. Nil disables it.
	Limiter *RateLimiter
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.Logger))
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	oauth := r.Group("/oauth")
	if opts.Limiter != nil {
		oauth.Use(opts.Limiter.Middleware())
	}
	oauth.GET("/:platform/callback", h.OAuthCallback)

	r.GET("/healthz", h.Health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	if len(h.JWTSecret) > 0 {
		api := r.Group("/api", h.RequireToken())
		api.GET("/cases/:id", h.GetCase)
		api.POST("/cases/:id/pardon", h.PardonCase)
		api.GET("/communities/:community/users/:user/cases", h.ListCases)
		api.GET("/users/:user", h.GetUser)
	}

	return r
}
