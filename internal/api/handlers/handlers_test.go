package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lever-lab/backend/internal/cache"
	"github.com/lever-lab/backend/internal/chat"
	"github.com/lever-lab/backend/internal/llm"
	"github.com/lever-lab/backend/internal/query"
	"github.com/lever-lab/backend/internal/session"
	"github.com/lever-lab/backend/internal/simulation"
	"github.com/lever-lab/backend/internal/storage/repo"
	"github.com/lever-lab/backend/internal/storage/sqlite"
	"github.com/lever-lab/backend/internal/timeline"
)

// countingLLM drafts a count query and then rephrases whatever it is given.
type countingLLM struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLLM) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++

	if l.calls%2 == 1 {
		return &llm.CompletionResponse{Content: "Tenemos X puntos de venta.\n```sql\nSELECT COUNT(*) AS total FROM store_master\n```"}, nil
	}
	return &llm.CompletionResponse{Content: "Hay 24 puntos de venta en el experimento."}, nil
}

type testServer struct {
	app      *fiber.App
	sessions *session.Manager
	cache    *cache.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	client, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())
	require.NoError(t, client.SeedDemo())

	r := repo.New(client.DB())
	mem := cache.NewMemory()
	sessions := session.NewManager(time.Hour, chat.DefaultHistoryLimit)
	pipeline := chat.NewPipeline(&countingLLM{}, query.NewExecutor(client.DB(), 5*time.Second), mem, r, chat.Options{})

	chatHandler := NewChatHandler(pipeline, sessions)

	app := fiber.New()
	Register(app, Handlers{
		Chat:       chatHandler,
		WebSocket:  NewWebSocketHandler(chatHandler),
		Data:       NewDataHandler(r),
		Dashboard:  NewDashboardHandler(r, timeline.NewAligner(r)),
		Simulation: NewSimulationHandler(simulation.NewCalculator(r), r),
		Analytics:  NewAnalyticsHandler(sessions, mem),
	})

	return &testServer{app: app, sessions: sessions, cache: mem}
}

func (s *testServer) do(t *testing.T, method, target string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestChat_StartMessageHistory(t *testing.T) {
	s := newTestServer(t)

	code, start := s.do(t, http.MethodPost, "/api/chat/start", map[string]string{"user_email": "ana@example.com"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, start["success"])
	assert.NotEmpty(t, start["welcome_message"])
	assert.Len(t, start["suggested_questions"], 4)

	id := start["session_id"].(string)

	code, msg := s.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": id, "message": "¿Cuántos PDV hay?"})
	require.Equal(t, http.StatusOK, code)

	resp := msg["response"].(map[string]any)
	assert.Equal(t, "Hay 24 puntos de venta en el experimento.", resp["text"])
	assert.Equal(t, true, resp["sql_executed"])
	assert.Equal(t, "reformulated", resp["path"])
	assert.Equal(t, "SELECT COUNT(*) AS total FROM store_master", resp["sql_used"])
	require.Len(t, resp["data"], 1)
	assert.EqualValues(t, 24, resp["data"].([]any)[0].(map[string]any)["total"])

	code, hist := s.do(t, http.MethodGet, "/api/chat/history/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	history := hist["history"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "¿Cuántos PDV hay?", history[0].(map[string]any)["question"])

	info, err := s.sessions.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Info().MessageCount)
}

func TestChat_MessageErrors(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": "6f1c2d36-4a0e-4f55-9d52-2d1b7bb2c001", "message": "hola"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])

	code, body = s.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": "not-a-uuid", "message": "hola"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "session_id", body["field"])

	id := s.sessions.Create("").ID
	code, body = s.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": id})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "message", body["field"])

	code, _ = s.do(t, http.MethodGet, "/api/chat/history/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDashboard_Timeline(t *testing.T) {
	s := newTestServer(t)

	q := url.Values{}
	q.Set("tipologia", "Conveniencia")
	q.Set("fuente", "Sell Out")
	q.Set("unidad", "Ventas")
	q.Set("categoria", "Gatorade")
	q.Set("palanca", "Nevera en caja")

	code, body := s.do(t, http.MethodGet, "/api/dashboard/timeline?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["sell_out"])
	assert.Equal(t, "09 Mar", data["anchor_display"])
	assert.NotEmpty(t, data["data"])

	code, body = s.do(t, http.MethodGet, "/api/dashboard/timeline?tipologia=Conveniencia", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []any{"fuente", "unidad", "categoria", "palanca"}, body["missing_fields"])
}

func TestDashboard_FilterOptionsAndResults(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/api/dashboard/filter-options", nil)
	require.Equal(t, http.StatusOK, code)
	opts := body["data"].(map[string]any)
	assert.NotContains(t, opts["palanca"], "Control")

	code, body = s.do(t, http.MethodGet, "/api/dashboard/results?tipologia=Droguer%C3%ADas&palanca=Punta%20de%20g%C3%B3ndola", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 8, body["total"])
}

func TestSimulation_Endpoints(t *testing.T) {
	s := newTestServer(t)

	req := map[string]any{
		"tipologia":    "Conveniencia",
		"palancas":     []string{"Punta de góndola"},
		"tamanoTienda": "Mediano",
		"features": map[string]float64{
			"frentesPropios": 4, "frentesCompetencia": 3,
			"skuPropios": 10, "skuCompetencia": 8,
			"equiposFrioPropios": 1, "equiposFrioCompetencia": 1,
			"puertasPropias": 2, "puertasCompetencia": 1,
		},
		"maco":         35,
		"exchangeRate": 3912,
	}

	code, body := s.do(t, http.MethodPost, "/api/simulation/calculate", req)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.InDelta(t, 15.55, data["uplift_pct"], 0.01)
	assert.Nil(t, data["payback_periods"])

	req["palancas"] = []string{}
	code, body = s.do(t, http.MethodPost, "/api/simulation/calculate", req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "palancas", body["field"])

	req["palancas"] = []string{"Punta de góndola"}
	req["tamanoTienda"] = "Enorme"
	code, body = s.do(t, http.MethodPost, "/api/simulation/calculate", req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "tamanoTienda", body["field"])

	delete(req, "exchangeRate")
	req["tamanoTienda"] = "Mediano"
	code, body = s.do(t, http.MethodPost, "/api/simulation/calculate", req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "exchangeRate", body["field"])

	code, body = s.do(t, http.MethodGet, "/api/simulation/ols-params?tipologia=Conveniencia", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1500000, body["intercept"])

	code, _ = s.do(t, http.MethodGet, "/api/simulation/ols-params?tipologia=Mayoristas", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/simulation/capex-fee?tipologia=Super%20e%20hiper&palancas=Punta%20de%20g%C3%B3ndola,Metro%20cuadrado", nil)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 3700, body["total_capex"], 1e-9)
	assert.InDelta(t, 95, body["total_fee"], 1e-9)

	code, _ = s.do(t, http.MethodGet, "/api/simulation/capex-fee?tipologia=Super%20e%20hiper", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalyticsAndData(t *testing.T) {
	s := newTestServer(t)

	id := s.sessions.Create("").ID
	code, _ := s.do(t, http.MethodPost, "/api/chat/message", map[string]string{"session_id": id, "message": "¿Cuántos PDV hay?"})
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodGet, "/api/analytics/sessions", nil)
	require.Equal(t, http.StatusOK, code)
	analytics := body["analytics"].(map[string]any)
	sessions := analytics["sessions"].(map[string]any)
	assert.EqualValues(t, 1, sessions["active_sessions"])
	assert.EqualValues(t, 1, analytics["cache"].(map[string]any)["total_cached_queries"])

	code, _ = s.do(t, http.MethodPost, "/api/analytics/cache/clear", nil)
	require.Equal(t, http.StatusOK, code)
	stats, err := s.cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)

	code, body = s.do(t, http.MethodGet, "/api/data/summary", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 24, body["summary"].(map[string]any)["store_master_count"])
	assert.EqualValues(t, 42, body["availability"].(map[string]any)["periods"])

	code, body = s.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestSplitIntoWords(t *testing.T) {
	assert.Equal(t, []string{"Hay", "24", "\n", "PDV"}, splitIntoWords("Hay  24\nPDV"))
	assert.Empty(t, splitIntoWords(""))
}
