package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainSignal/internal/domain/models"
	"ChainSignal/internal/repository"
	"ChainSignal/internal/service/ratelimit"
	"ChainSignal/internal/usecase"
	xlogger "ChainSignal/pkg/logger"
)

type rampObserver struct{}

func (rampObserver) Observe(_ context.Context, targets []models.Target) map[models.Target]usecase.Observation {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	out := map[models.Target]usecase.Observation{}
	for _, t := range targets {
		out[t] = usecase.Observation{Series: series, Current: series[len(series)-1]}
	}
	return out
}

// quietSource returns empty data for every call.
type quietSource struct{}

func (quietSource) GetPriceSeries(context.Context, int) ([]models.PricePoint, error) { return nil, nil }
func (quietSource) GetCurrentSnapshot(context.Context) (models.MarketSnapshot, error) {
	return models.MarketSnapshot{Price: 100}, nil
}
func (quietSource) GetMempoolSnapshot(context.Context) (models.MempoolSnapshot, error) {
	return models.MempoolSnapshot{}, nil
}
func (quietSource) GetLargeTransactions(context.Context, float64, int) ([]models.LargeTransaction, error) {
	return nil, nil
}
func (quietSource) GetTopHolders(context.Context) ([]models.Holder, error) { return nil, nil }
func (quietSource) GetAddressLastActivity(_ context.Context, a string) (models.AddressActivity, error) {
	return models.AddressActivity{Address: a}, nil
}
func (quietSource) GetExchangeFlows(context.Context, int) ([]models.ExchangeFlow, error) {
	return nil, nil
}

type fixture struct {
	e      *echo.Echo
	pm     *usecase.PredictionManager
	feed   *usecase.AlertFeed
	engine *usecase.AlertEngine
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	store := repository.NewMemoryListStore()
	pm := usecase.NewPredictionManager(rampObserver{}, store, usecase.PredictionConfig{
		Targets:    []models.Target{models.TargetPrice},
		Timeframes: []models.Timeframe{models.TF1h, models.TF4h},
	})
	feed := usecase.NewAlertFeed(store, 10)
	engine := usecase.NewAlertEngine(quietSource{}, feed, usecase.DefaultRules(quietSource{}), usecase.AlertEngineConfig{})

	e := echo.New()
	log := xlogger.Nop()
	NewPredictionsEchoHandler(log, pm, limiter).RegisterRoutes(e)
	NewAlertsEchoHandler(log, feed, engine).RegisterRoutes(e)
	NewAlertStreamHandler(log, feed).RegisterRoutes(e)
	return &fixture{e: e, pm: pm, feed: feed, engine: engine}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env map[string]json.RawMessage
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestGenerateAndListPredictions(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodPost, "/api/predictions/generate", `{"timeframe":"1h"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var created []models.Prediction
	require.NoError(t, json.Unmarshal(env["data"], &created))
	require.Len(t, created, 1)
	assert.Equal(t, models.TF1h, created[0].Timeframe)

	rec, env = f.do(t, http.MethodGet, "/api/predictions?target=price", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.Prediction `json:"rows"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env["data"], &list))
	assert.EqualValues(t, 1, list.Total)

	rec, env = f.do(t, http.MethodGet, "/api/predictions/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var slots []SlotView
	require.NoError(t, json.Unmarshal(env["data"], &slots))
	require.Len(t, slots, 2)
	assert.NotNil(t, slots[0].Prediction)
	assert.Greater(t, slots[0].CountdownSeconds, int64(3500))
	assert.Nil(t, slots[1].Prediction)
}

func TestPredictionRequestValidation(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodGet, "/api/predictions?timeframe=2h", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/predictions/generate", `{"target":"gold"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/api/accuracy?target=price", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var acc models.PredictionAccuracy
	require.NoError(t, json.Unmarshal(env["data"], &acc))
	assert.Equal(t, models.TargetPrice, acc.Target)
	assert.Zero(t, acc.TotalPredictions)
}

func TestGenerateRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.New(0.001, 1))

	rec, _ := f.do(t, http.MethodPost, "/api/predictions/generate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/predictions/generate", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAlertEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.feed.Add(ctx,
		models.Alert{ID: "a1", Timestamp: time.Now(), Severity: models.SeverityInfo, Category: models.CategoryLargeOutflow},
		models.Alert{ID: "a2", Timestamp: time.Now(), Severity: models.SeverityCritical, Category: models.CategoryNewWhaleTop100},
	)

	rec, env := f.do(t, http.MethodGet, "/api/alerts?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list alertList
	require.NoError(t, json.Unmarshal(env["data"], &list))
	require.Len(t, list.Alerts, 2)
	assert.Equal(t, "a2", list.Alerts[0].ID)
	assert.Equal(t, 2, list.UnreadCount)

	rec, _ = f.do(t, http.MethodPost, "/api/alerts/a1/read", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/alerts/missing/read", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, f.feed.UnreadCount())

	rec, env = f.do(t, http.MethodPost, "/api/alerts/read-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":1}`, string(env["data"]))

	rec, env = f.do(t, http.MethodGet, "/api/alerts/toasts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var toasts []usecase.Toast
	require.NoError(t, json.Unmarshal(env["data"], &toasts))
	assert.Len(t, toasts, 2)

	rec, _ = f.do(t, http.MethodDelete, "/api/alerts", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.feed.List(0, false))
}

func TestRuleEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []models.RuleStatus
	require.NoError(t, json.Unmarshal(env["data"], &statuses))
	require.Len(t, statuses, 6)

	rec, env = f.do(t, http.MethodPut, "/api/rules/long_trap_signal", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st models.RuleStatus
	require.NoError(t, json.Unmarshal(env["data"], &st))
	assert.False(t, st.Enabled)

	rec, _ = f.do(t, http.MethodPut, "/api/rules/nope", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodPut, "/api/rules/long_trap_signal", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/rules/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := f.engine.Status("long_trap_signal")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestAlertStreamPushesNewAlerts(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	f.feed.Add(context.Background(), models.Alert{ID: "ws1", Timestamp: time.Now(), Category: models.CategoryLargeInflow})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "alert", msg.Type)
	require.NotNil(t, msg.Alert)
	assert.Equal(t, "ws1", msg.Alert.ID)
}
