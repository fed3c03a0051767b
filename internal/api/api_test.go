package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"credit_ledger/internal/chat"
	"credit_ledger/internal/config"
	"credit_ledger/internal/db/dbtest"
	"credit_ledger/internal/domain"
	"credit_ledger/internal/generate"
	"credit_ledger/internal/ledger"
	"credit_ledger/internal/middleware"
	"credit_ledger/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminKey  = "operator-key"
	jwtSecret = "test-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	ledger *ledger.Ledger
}

func newTestServer(t *testing.T, configure func(cfg *config.Config, d *Deps)) *testServer {
	t.Helper()
	cfg := config.Default()
	l := ledger.New(dbtest.NewStore(t), ledger.Options{DefaultBalance: domain.DefaultBalance})
	d := Deps{Config: cfg, Ledger: l}
	if configure != nil {
		configure(cfg, &d)
	}
	return &testServer{router: NewRouter(d), ledger: l}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func withAdminKey(t *testing.T) func(cfg *config.Config, d *Deps) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)
	return func(cfg *config.Config, _ *Deps) {
		cfg.AdminKeyHash = string(hash)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w, body := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestGetBalanceCreatesUser(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(t, http.MethodGet, "/api/user/u1/balance", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, float64(500), body["balance"])
	assert.Equal(t, true, body["isNew"])

	_, body = s.do(t, http.MethodGet, "/api/user/u1/balance", "", nil)
	assert.Equal(t, false, body["isNew"])
}

func TestDeductBalance(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/api/user/u1/balance", "", nil)

	w, body := s.do(t, http.MethodPost, "/api/user/u1/deduct-balance", `{"amount": 120, "description": "quiz"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(500), body["balanceBefore"])
	assert.Equal(t, float64(380), body["balanceAfter"])
	assert.Equal(t, float64(120), body["deducted"])
	assert.NotEmpty(t, body["transactionId"])

	w, body = s.do(t, http.MethodPost, "/api/user/u1/deduct-balance", `{"amount": "400"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient balance", body["error"])
	assert.Equal(t, float64(380), body["currentBalance"])
	assert.Equal(t, float64(400), body["required"])
	assert.Equal(t, float64(20), body["shortage"])

	w, body = s.do(t, http.MethodPost, "/api/user/ghost/deduct-balance", `{"amount": 1}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", body["error"])
}

func TestInvalidAmountsRejected(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/api/user/u1/balance", "", nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "text", body: `{"amount": "abc"}`},
		{name: "null", body: `{"amount": null}`},
		{name: "missing", body: `{}`},
		{name: "negative", body: `{"amount": -5}`},
		{name: "zero", body: `{"amount": 0}`},
		{name: "bool", body: `{"amount": true}`},
		{name: "above maximum", body: `{"amount": 1e308}`},
	}
	for _, tt := range tests {
		for _, op := range []string{"deduct-balance", "add-balance"} {
			t.Run(tt.name+"/"+op, func(t *testing.T) {
				w, body := s.do(t, http.MethodPost, "/api/user/u1/"+op, tt.body, nil)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, false, body["success"])
				assert.Equal(t, "Invalid amount", body["error"])
				assert.NotEmpty(t, body["details"])
			})
		}
	}

	w, body := s.do(t, http.MethodPost, "/api/user/u1/deduct-balance", `{"amount":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request", body["error"])

	bal, err := s.ledger.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(500), bal.Balance)
}

func TestAddBalanceCannotOverflow(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodPost, "/api/user/rich/add-balance", `{"amount": 1e12}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, body := s.do(t, http.MethodPost, "/api/user/rich/add-balance", `{"amount": 1e12}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid amount", body["error"])

	w, body = s.do(t, http.MethodGet, "/api/user/rich/balance", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1e12, body["balance"])
}

func TestEntryTypeRestrictedPerRoute(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/api/user/u1/balance", "", nil)

	tests := []struct {
		op   string
		typ  string
		want int
	}{
		{op: "deduct-balance", typ: "deduct", want: http.StatusOK},
		{op: "deduct-balance", typ: "generation", want: http.StatusOK},
		{op: "deduct-balance", typ: "add", want: http.StatusBadRequest},
		{op: "deduct-balance", typ: "initial", want: http.StatusBadRequest},
		{op: "add-balance", typ: "add", want: http.StatusOK},
		{op: "add-balance", typ: "deduct", want: http.StatusBadRequest},
		{op: "add-balance", typ: "generation", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.op+"/"+tt.typ, func(t *testing.T) {
			w, body := s.do(t, http.MethodPost, "/api/user/u1/"+tt.op, `{"amount": 1, "type": "`+tt.typ+`"}`, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusBadRequest {
				assert.Equal(t, "Invalid request", body["error"])
			}
		})
	}

	page, err := s.ledger.History(context.Background(), "u1", ledger.Page{})
	require.NoError(t, err)
	counts := map[string]int{}
	for _, tx := range page.Transactions {
		counts[tx.Type]++
	}
	assert.Equal(t, map[string]int{"initial": 1, "deduct": 1, "generation": 1, "add": 1}, counts)
}

func TestInvalidUserID(t *testing.T) {
	s := newTestServer(t, nil)
	long := strings.Repeat("x", 129)
	w, body := s.do(t, http.MethodGet, "/api/user/"+long+"/balance", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid user ID", body["error"])
}

func TestAddBalanceAndHistory(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(t, http.MethodPost, "/api/user/fresh/add-balance", `{"amount": "75.5"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(0), body["balanceBefore"])
	assert.Equal(t, 75.5, body["balanceAfter"])
	assert.Equal(t, 75.5, body["added"])

	s.do(t, http.MethodPost, "/api/user/fresh/deduct-balance", `{"amount": 5, "type": "generation", "tokens": 500}`, nil)

	w, body = s.do(t, http.MethodGet, "/api/user/fresh/transactions?page=1&page_size=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(2), body["total_pages"])
	txs := body["transactions"].([]any)
	require.Len(t, txs, 1)
}

func TestAdminRoutes(t *testing.T) {
	t.Run("disabled without key hash", func(t *testing.T) {
		s := newTestServer(t, nil)
		w, _ := s.do(t, http.MethodGet, "/admin/users", "", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		// add-balance stays open in the default auth mode
		w, _ = s.do(t, http.MethodPost, "/api/user/u1/add-balance", `{"amount": 1}`, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("key required once configured", func(t *testing.T) {
		s := newTestServer(t, withAdminKey(t))
		key := map[string]string{middleware.AdminKeyHeader: adminKey}

		w, _ := s.do(t, http.MethodPost, "/api/user/u1/add-balance", `{"amount": 10}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		w, _ = s.do(t, http.MethodPost, "/api/user/u1/add-balance", `{"amount": 10}`, map[string]string{middleware.AdminKeyHeader: "wrong"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		w, _ = s.do(t, http.MethodPost, "/api/user/u1/add-balance", `{"amount": 10}`, key)
		require.Equal(t, http.StatusOK, w.Code)
		s.do(t, http.MethodGet, "/api/user/u2/balance", "", nil)

		w, body := s.do(t, http.MethodGet, "/admin/users", "", key)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), body["total"])
		assert.Equal(t, false, body["cached"])

		w, body = s.do(t, http.MethodGet, "/admin/transactions?type=initial", "", key)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), body["total"])

		w, _ = s.do(t, http.MethodGet, "/admin/transactions?from=yesterday", "", key)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJWTMode(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config, d *Deps) {
		withAdminKey(t)(cfg, d)
		cfg.AuthMode = config.AuthJWT
		cfg.JWTSecret = jwtSecret
	})

	w, _ := s.do(t, http.MethodGet, "/api/user/alice/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bob, err := utils.GenerateJWT("bob", jwtSecret, time.Hour)
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodGet, "/api/user/alice/balance", "", map[string]string{"Authorization": "Bearer " + bob})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Token minted through the operator endpoint
	w, body := s.do(t, http.MethodPost, "/admin/tokens", `{"userId": "alice"}`, map[string]string{middleware.AdminKeyHeader: adminKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	w, body = s.do(t, http.MethodGet, "/api/user/alice/balance", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(500), body["balance"])
}

func TestRateLimitedMutations(t *testing.T) {
	s := newTestServer(t, func(_ *config.Config, d *Deps) {
		d.Limiter = middleware.NewRateLimiter(0.001, 2)
	})
	s.do(t, http.MethodGet, "/api/user/u1/balance", "", nil)

	for i := 0; i < 2; i++ {
		w, _ := s.do(t, http.MethodPost, "/api/user/u1/deduct-balance", `{"amount": 1}`, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w, _ := s.do(t, http.MethodPost, "/api/user/u1/deduct-balance", `{"amount": 1}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Reads are not limited
	w, _ = s.do(t, http.MethodGet, "/api/user/u1/balance", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type stubCompleter struct{}

func (stubCompleter) CreateChatCompletion(context.Context, chat.ChatCompletionRequest) (*chat.ChatCompletionResponse, error) {
	return &chat.ChatCompletionResponse{
		Choices: []chat.Choice{{Message: chat.Message{Role: chat.RoleAssistant, Content: "Quiz body"}}},
		Usage:   &chat.Usage{TotalTokens: 100},
	}, nil
}

func (stubCompleter) CreateChatCompletionStream(_ context.Context, _ chat.ChatCompletionRequest, handler func(*chat.StreamChunk) error) error {
	for _, part := range []string{"Quiz ", "body"} {
		if err := handler(&chat.StreamChunk{Choices: []chat.StreamChoice{{Delta: chat.Delta{Content: part}}}}); err != nil {
			return err
		}
	}
	return handler(&chat.StreamChunk{Usage: &chat.Usage{TotalTokens: 100}})
}

func TestGenerate(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, nil)
		w, _ := s.do(t, http.MethodPost, "/api/user/u1/generate", `{"kind": "quiz", "topic": "x"}`, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	s := newTestServer(t, func(cfg *config.Config, d *Deps) {
		d.Generator = generate.NewService(d.Ledger, stubCompleter{}, generate.Options{
			Model:      "m",
			MaxTokens:  cfg.ChatMaxTokens,
			TokenPrice: 0.01,
		})
	})

	t.Run("json", func(t *testing.T) {
		w, body := s.do(t, http.MethodPost, "/api/user/u1/generate", `{"kind": "quiz", "topic": "fractions"}`, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		result := body["result"].(map[string]any)
		assert.Equal(t, "Quiz body", result["content"])
		assert.Equal(t, float64(1), result["cost"])
		assert.Equal(t, float64(499), result["balanceAfter"])
	})

	t.Run("stream", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/user/u1/generate", `{"kind": "quiz", "topic": "fractions", "stream": true}`, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		out := w.Body.String()
		assert.Contains(t, out, "event:message")
		assert.Contains(t, out, "event:done")
		assert.Contains(t, out, `"balanceAfter":498`)
	})

	t.Run("invalid kind", func(t *testing.T) {
		w, body := s.do(t, http.MethodPost, "/api/user/u1/generate", `{"kind": "essay", "topic": "x"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid request", body["error"])
	})
}

func TestMetricsExposed(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/health", "", nil)

	w, _ := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "credit_ledger_http_requests_total")
}
