package server

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	mid "github.com/OFFIS-RIT/evidence-graph/internal/server/middleware"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewValidator returns a validator that reports fields by their json name
// and knows the notblank tag.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &CustomValidator{validator: v}
}

// Config holds the HTTP settings. An empty APIKey disables authentication.
type Config struct {
	Port            string
	APIKey          string
	BodyLimit       string
	ShutdownTimeout time.Duration
}

// New builds the echo instance with middleware and routes.
func New(app *mid.App, cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()

	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "2M"
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Error("[Server] Request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "err", v.Error)
				return nil
			}
			logger.Debug("[Server] Request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))
	if cfg.APIKey != "" {
		e.Use(mid.APIKeyAuth(cfg.APIKey))
	}

	RegisterRoutes(e)
	return e
}

// Run serves until ctx is cancelled, then shuts the server down gracefully
// and stops the progress tracker.
func Run(ctx context.Context, app *mid.App, cfg Config) error {
	e := New(app, cfg)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", port, "auth", cfg.APIKey != "")
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			app.Tracker.Shutdown()
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := e.Shutdown(shutdownCtx)
	if err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
	app.Tracker.Shutdown()
	return err
}
