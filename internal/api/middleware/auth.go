// Package middleware provides HTTP middleware for the Leadbox API.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// APIKeyAuth guards the API behind a bearer key. An empty key disables the
// check entirely, which is the local-development mode. Health probes always
// pass so orchestrators can reach them without credentials.
func APIKeyAuth(key string, logger *slog.Logger) echo.MiddlewareFunc {
	if key == "" && logger != nil {
		logger.Warn("no API key configured, requests are unauthenticated")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}

			path := c.Path()
			if strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/ready") {
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			if header == "" {
				if logger != nil {
					logger.Warn("missing authorization header",
						slog.String("ip", c.RealIP()),
						slog.String("path", path))
				}
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
					"error": "missing authorization header",
					"code":  "UNAUTHORIZED",
				})
			}

			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			// Constant-time compare so response timing leaks nothing about
			// how much of the key matched.
			if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				if logger != nil {
					logger.Warn("rejected API key",
						slog.String("ip", c.RealIP()),
						slog.String("path", path))
				}
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
					"error": "invalid API key",
					"code":  "UNAUTHORIZED",
				})
			}

			return next(c)
		}
	}
}
