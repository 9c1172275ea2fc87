package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"ChainSignal/internal/domain/models"
	"ChainSignal/internal/usecase"
	xhttp "ChainSignal/pkg/http"
	xlogger "ChainSignal/pkg/logger"
)

// AlertsEchoHandler serves the alert feed and rule management.
type AlertsEchoHandler struct {
	logger *xlogger.Logger
	feed   *usecase.AlertFeed
	engine *usecase.AlertEngine
}

func NewAlertsEchoHandler(logger *xlogger.Logger, feed *usecase.AlertFeed, engine *usecase.AlertEngine) *AlertsEchoHandler {
	return &AlertsEchoHandler{logger: logger, feed: feed, engine: engine}
}

func (h *AlertsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/alerts", h.List)
	g.GET("/alerts/toasts", h.Toasts)
	g.POST("/alerts/read-all", h.MarkAllRead)
	g.POST("/alerts/:id/read", h.MarkRead)
	g.DELETE("/alerts", h.Clear)
	g.GET("/rules", h.Rules)
	g.PUT("/rules/:name", h.ToggleRule)
	g.POST("/rules/check", h.Check)
}

type alertList struct {
	Alerts      []models.Alert `json:"alerts"`
	UnreadCount int            `json:"unread_count"`
}

func (h *AlertsEchoHandler) List(c echo.Context) error {
	req := &models.AlertListRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	alerts := h.feed.List(req.Limit, req.UnreadOnly)
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return xhttp.SuccessResponse(c, alertList{Alerts: alerts, UnreadCount: h.feed.UnreadCount()})
}

func (h *AlertsEchoHandler) Toasts(c echo.Context) error {
	toasts := h.feed.Toasts()
	if toasts == nil {
		toasts = []usecase.Toast{}
	}
	return xhttp.SuccessResponse(c, toasts)
}

func (h *AlertsEchoHandler) MarkRead(c echo.Context) error {
	id := c.Param("id")
	if err := h.feed.MarkRead(c.Request().Context(), id); err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", id))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *AlertsEchoHandler) MarkAllRead(c echo.Context) error {
	n := h.feed.MarkAllRead(c.Request().Context())
	return xhttp.SuccessResponse(c, map[string]int{"marked": n})
}

func (h *AlertsEchoHandler) Clear(c echo.Context) error {
	h.feed.ClearAll(c.Request().Context())
	h.logger.Info("alerts cleared")
	return xhttp.NoContentResponse(c)
}

func (h *AlertsEchoHandler) Rules(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Statuses())
}

func (h *AlertsEchoHandler) ToggleRule(c echo.Context) error {
	req := &models.RuleToggleRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.engine.SetEnabled(req.Name, *req.Enabled)
	if err != nil {
		if errors.Is(err, models.ErrUnknownRule) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("rule %s not found", req.Name))
		}
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("alerts.rule toggled", xlogger.String("rule", req.Name), xlogger.Bool("enabled", st.Enabled))
	return xhttp.SuccessResponse(c, st)
}

// Check runs one evaluation pass now and returns what it found.
func (h *AlertsEchoHandler) Check(c echo.Context) error {
	found, err := h.engine.CheckNow(c.Request().Context())
	if err != nil {
		if errors.Is(err, models.ErrCheckInProgress) {
			return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("a rule check is already running"))
		}
		h.logger.Error("alerts.check manual failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if found == nil {
		found = []models.Alert{}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"alerts": found,
		"rules":  h.engine.Statuses(),
	})
}
