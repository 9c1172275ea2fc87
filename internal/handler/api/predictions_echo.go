package api

import (
	"math"
	"net/http"

	"github.com/labstack/echo/v4"

	"ChainSignal/internal/domain/models"
	"ChainSignal/internal/service/ratelimit"
	"ChainSignal/internal/usecase"
	xhttp "ChainSignal/pkg/http"
	xlogger "ChainSignal/pkg/logger"
)

// PredictionsEchoHandler serves predictions, manual generation and accuracy.
type PredictionsEchoHandler struct {
	logger  *xlogger.Logger
	pm      *usecase.PredictionManager
	limiter *ratelimit.Limiter
}

func NewPredictionsEchoHandler(logger *xlogger.Logger, pm *usecase.PredictionManager, limiter *ratelimit.Limiter) *PredictionsEchoHandler {
	return &PredictionsEchoHandler{logger: logger, pm: pm, limiter: limiter}
}

func (h *PredictionsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/predictions", h.List)
	g.GET("/predictions/active", h.Active)
	g.POST("/predictions/generate", h.Generate)
	g.GET("/accuracy", h.Accuracy)
}

func (h *PredictionsEchoHandler) List(c echo.Context) error {
	req := &models.PredictionListRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.pm.List(usecase.PredictionFilter{
		Target:    models.Target(req.Target),
		Timeframe: models.Timeframe(req.Timeframe),
		Limit:     req.Limit,
	})
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// SlotView is one (target, timeframe) cell of the dashboard.
type SlotView struct {
	Target           models.Target      `json:"target"`
	Timeframe        models.Timeframe   `json:"timeframe"`
	Prediction       *models.Prediction `json:"prediction,omitempty"`
	CountdownSeconds int64              `json:"countdown_seconds"`
	Accuracy         *float64           `json:"accuracy,omitempty"`
}

// Active lists every configured slot with its pending prediction, if any.
func (h *PredictionsEchoHandler) Active(c echo.Context) error {
	active := h.pm.Active()
	out := make([]SlotView, 0, len(h.pm.Slots()))
	for _, s := range h.pm.Slots() {
		v := SlotView{Target: s.Target, Timeframe: s.Timeframe}
		if p, ok := active[s]; ok {
			p := p
			v.Prediction = &p
			if d, ok := h.pm.Countdown(s); ok {
				v.CountdownSeconds = int64(math.Ceil(d.Seconds()))
			}
		}
		if acc, ok := h.pm.SlotAccuracy(s); ok {
			v.Accuracy = &acc
		}
		out = append(out, v)
	}
	return xhttp.SuccessResponse(c, out)
}

// Generate forces a prediction for the selected slots. Limited per client IP.
func (h *PredictionsEchoHandler) Generate(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow("generate:"+c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("generation is rate limited, retry later"))
	}
	req := &models.GenerateRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	created := h.pm.Generate(c.Request().Context(), models.Target(req.Target), models.Timeframe(req.Timeframe))
	h.logger.Info("prediction.generate manual",
		xlogger.String("target", req.Target),
		xlogger.String("timeframe", req.Timeframe),
		xlogger.Int("created", len(created)),
	)
	if created == nil {
		created = []models.Prediction{}
	}
	return xhttp.DataResponse(c, http.StatusOK, created)
}

func (h *PredictionsEchoHandler) Accuracy(c echo.Context) error {
	req := &models.AccuracyRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Target != "" {
		return xhttp.SuccessResponse(c, h.pm.Accuracy(models.Target(req.Target)))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"overall":   h.pm.Accuracy(""),
		"by_target": h.pm.AccuracyByTarget(),
	})
}
