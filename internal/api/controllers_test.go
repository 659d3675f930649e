package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"compliance-gate/internal/audit"
	"compliance-gate/internal/broker"
	"compliance-gate/internal/events"
	"compliance-gate/internal/gate"
	"compliance-gate/internal/market"
	"compliance-gate/internal/risk"
	"compliance-gate/internal/rules"
	"compliance-gate/pkg/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server *Server
	db     *db.Database
	token  string
}

func newTestEnv(t *testing.T, ruleList []rules.Rule, cfg gate.Config) *testEnv {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rs, err := rules.NewRuleSet("s1", 1, ruleList)
	if err != nil {
		t.Fatalf("NewRuleSet: %v", err)
	}
	bus := events.NewBus()
	exec := gate.NewExecutor("s1", rules.NewEngine("s1", rs),
		risk.NewEvaluator(risk.Limits{}), broker.NewPaper(0),
		audit.NewMemoryLog("s1"), bus, database, cfg)

	registry := gate.NewRegistry()
	registry.Register(exec)

	rulesDir := t.TempDir()
	server := NewServer(bus, database, registry, Options{
		JWTSecret:      "test-secret",
		RulesDir:       rulesDir,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})

	env := &testEnv{server: server, db: database}
	env.token = env.register(t, "reviewer@example.com", "hunter22")
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+env.token)
	}
	w := httptest.NewRecorder()
	env.server.Router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	creds := gin.H{"email": email, "password": password}
	if w := env.do(t, http.MethodPost, "/api/auth/register", creds, false); w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	w := env.do(t, http.MethodPost, "/api/auth/login", creds, false)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("bad login response: %v %s", err, w.Body.String())
	}
	return resp.Token
}

func signalPayload() gin.H {
	return gin.H{
		"signal": market.Signal{
			StockCode:      "600519",
			Action:         market.ActionBuy,
			TargetPosition: 0.10,
			Price:          1500,
			Confidence:     0.9,
			Timestamp:      time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		},
		"snapshot": market.Snapshot{
			Quotes:  map[string]market.Quote{"600519": {Price: 1500}},
			Account: market.Account{Equity: 1_000_000, Cash: 500_000},
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, gate.Config{})
	if w := env.do(t, http.MethodGet, "/health", nil, false); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil, gate.Config{})
	w := env.do(t, http.MethodGet, "/api/strategies", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t, nil, gate.Config{})
	w := env.do(t, http.MethodPost, "/api/auth/login",
		gin.H{"email": "reviewer@example.com", "password": "wrong"}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSignalApprovalWorkflow(t *testing.T) {
	env := newTestEnv(t, nil, gate.Config{RequireManualApproval: true})

	w := env.do(t, http.MethodPost, "/api/strategies/s1/signals", signalPayload(), true)
	if w.Code != http.StatusOK {
		t.Fatalf("submit signal: %d %s", w.Code, w.Body.String())
	}
	var o gate.Order
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if o.State != gate.StatePendingApproval {
		t.Fatalf("expected PENDING_APPROVAL, got %s", o.State)
	}

	w = env.do(t, http.MethodGet, "/api/strategies/s1/orders/pending", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("pending: %d", w.Code)
	}
	var pending struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil || pending.Count != 1 {
		t.Fatalf("expected 1 pending order, got %+v", pending)
	}

	approvePath := fmt.Sprintf("/api/orders/s1/%s/approve", o.OrderID)
	w = env.do(t, http.MethodPost, approvePath, nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", w.Code, w.Body.String())
	}
	var approved gate.Order
	if err := json.Unmarshal(w.Body.Bytes(), &approved); err != nil {
		t.Fatalf("decode approved: %v", err)
	}
	if approved.State != gate.StateExecuted {
		t.Fatalf("expected EXECUTED, got %s", approved.State)
	}
	if approved.Approver != "reviewer@example.com" {
		t.Fatalf("approver from token not recorded: %q", approved.Approver)
	}

	// Second approval races against a decided order and must conflict.
	w = env.do(t, http.MethodPost, approvePath, nil, true)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double approve, got %d", w.Code)
	}

	// The audit trail is served with filters.
	w = env.do(t, http.MethodGet, "/api/strategies/s1/audit?order_id="+o.OrderID, nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("audit: %d", w.Code)
	}
	var auditResp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &auditResp); err != nil || auditResp.Count < 5 {
		t.Fatalf("expected full audit trail, got %s", w.Body.String())
	}
}

func TestRejectOrderEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, gate.Config{RequireManualApproval: true})

	w := env.do(t, http.MethodPost, "/api/strategies/s1/signals", signalPayload(), true)
	var o gate.Order
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode order: %v", err)
	}

	path := fmt.Sprintf("/api/orders/s1/%s/reject", o.OrderID)
	w = env.do(t, http.MethodPost, path, gin.H{"reason": "position too large"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: %d %s", w.Code, w.Body.String())
	}
	var rejected gate.Order
	if err := json.Unmarshal(w.Body.Bytes(), &rejected); err != nil {
		t.Fatalf("decode rejected: %v", err)
	}
	if rejected.State != gate.StateRejected || rejected.RejectReason != "position too large" {
		t.Fatalf("unexpected result: %+v", rejected)
	}
}

func TestUnknownStrategyAndOrder(t *testing.T) {
	env := newTestEnv(t, nil, gate.Config{})
	if w := env.do(t, http.MethodGet, "/api/strategies/nope/report", nil, true); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown strategy, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/orders/s1/nope/approve", nil, true); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", w.Code)
	}
}

func TestReloadRulesEndpoint(t *testing.T) {
	band := rules.Rule{
		ID:        "price-band",
		Kind:      rules.KindEntry,
		Name:      "price band",
		Condition: rules.PriceRange{Min: 10, Max: 1000},
		Action:    rules.ActionReject,
		Mandatory: true,
	}
	env := newTestEnv(t, []rules.Rule{band}, gate.Config{RequireManualApproval: true})

	// Rejected under v1.
	w := env.do(t, http.MethodPost, "/api/strategies/s1/signals", signalPayload(), true)
	var o gate.Order
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.State != gate.StateRejected {
		t.Fatalf("expected rejection under v1 rules, got %s", o.State)
	}

	// Write a v2 rule file with a wider band and reload.
	doc := `
strategy: s1
version: 2
rules:
  - id: price-band
    kind: entry
    name: price band
    condition:
      type: price_range
      min: 10
      max: 5000
    action: reject
    mandatory: true
`
	path := filepath.Join(env.server.RulesDir, "s1.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if w := env.do(t, http.MethodPost, "/api/strategies/s1/rules/reload", nil, true); w.Code != http.StatusOK {
		t.Fatalf("reload: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/strategies/s1/signals", signalPayload(), true)
	if err := json.Unmarshal(w.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.State != gate.StatePendingApproval {
		t.Fatalf("expected pass under v2 rules, got %s", o.State)
	}
}

func TestExecutionReportEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, gate.Config{RequireManualApproval: true})

	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodPost, "/api/strategies/s1/signals", signalPayload(), true); w.Code != http.StatusOK {
			t.Fatalf("submit: %d", w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/api/strategies/s1/report", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("report: %d", w.Code)
	}
	var rep gate.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.TotalSignals != 2 {
		t.Fatalf("expected 2 signals in report, got %d", rep.TotalSignals)
	}
	if rep.OrdersByState[gate.StatePendingApproval] != 2 {
		t.Fatalf("expected 2 pending in report, got %+v", rep.OrdersByState)
	}
}
