package sandbox

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconnect/telemed/internal/platform/auth"
	"github.com/medconnect/telemed/internal/platform/db"
	"github.com/medconnect/telemed/internal/platform/middleware"
)

// ServerConfig assembles a sandbox server.
type ServerConfig struct {
	Repo     Repository
	Location *time.Location
	Logger   zerolog.Logger
	// SigningKey enables HS256 verification of bearer tokens. When empty,
	// requests run as DevUserID/DevRole unless they carry a token.
	SigningKey     []byte
	Issuer         string
	DevUserID      string
	DevRole        string
	DB             db.Pinger
	RequestTimeout time.Duration
	BodyLimit      string
}

// NewServer returns an echo instance with middleware and routes mounted.
func NewServer(cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "1M"
	}

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(cfg.Logger))
	e.Use(middleware.Recovery(cfg.Logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.DB != nil {
		e.GET("/health/db", db.HealthHandler(cfg.DB))
	}

	var authMW echo.MiddlewareFunc
	if len(cfg.SigningKey) > 0 {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.Issuer,
			SigningKey: cfg.SigningKey,
			Skipper:    auth.AuthSkipper,
		})
	} else {
		userID, role := cfg.DevUserID, cfg.DevRole
		if userID == "" {
			userID = "1"
		}
		if role == "" {
			role = auth.RoleDoctor
		}
		authMW = auth.DevAuthMiddleware(userID, role)
	}

	api := e.Group("", authMW)
	NewHandler(cfg.Repo, cfg.Location, cfg.Logger).RegisterRoutes(api)
	return e
}
