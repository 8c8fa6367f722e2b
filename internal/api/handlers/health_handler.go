package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthResponse reports overall status plus each checked dependency.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) pingDB() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Health handles GET /health. The process is healthy when the database
// answers a ping; ingestion workers report their own state via /api/sync/status.
func (h *HealthHandler) Health(c echo.Context) error {
	checks := map[string]string{"database": "ok"}
	status, code := "healthy", http.StatusOK

	if err := h.pingDB(); err != nil {
		checks["database"] = "unreachable"
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	return c.JSON(code, HealthResponse{Status: status, Checks: checks})
}

// Ready handles GET /ready. It gates traffic until the database is usable.
func (h *HealthHandler) Ready(c echo.Context) error {
	if err := h.pingDB(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
