package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/chainfolio/chainfolio/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testAdmin  = "0x1111111111111111111111111111111111111111"
	testKeeper = "0x2222222222222222222222222222222222222222"
)

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "development",
		LogLevel:             "error",
		AdminAddress:         testAdmin,
		KeeperAddress:        testKeeper,
		FeeCollector:         testAdmin,
		VaultAddress:         testAdmin,
		PlatformFeeBPS:       config.DefaultPlatformFeeBPS,
		InvestmentsEnabled:   true,
		HighRiskThreshold:    config.DefaultHighRiskThreshold,
		HighValueThreshold:   config.DefaultHighValueThreshold,
		MediumValueThreshold: config.DefaultMediumValueThreshold,
	}
}

// newTestServer creates a server with in-memory stores
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Config validation tests
// ---------------------------------------------------------------------------

func TestNewRejectsBadAdmin(t *testing.T) {
	cfg := testConfig()
	cfg.AdminAddress = "not-an-address"

	if _, err := New(cfg); err == nil {
		t.Error("Expected error for invalid admin address")
	}
}

func TestNewRejectsBadThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.HighValueThreshold = "abc"

	if _, err := New(cfg); err == nil {
		t.Error("Expected error for non-numeric threshold")
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"GET:/v1/platform",
		"GET:/v1/events",
		"POST:/v1/monitor",
		"GET:/v1/monitor/transactions/:id",
		"POST:/v1/portfolios",
		"GET:/v1/portfolios/:id",
		"POST:/v1/strategies",
		"POST:/v1/investments",
		"GET:/v1/treasury/:address/balance",
		"POST:/v1/treasury/:address/deposits",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Caller identity tests
// ---------------------------------------------------------------------------

func TestCallerHeaderRejected(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/platform", nil)
	req.Header.Set("X-Caller-Address", "0xZZ")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed caller address, got %d", w.Code)
	}
}

func TestCreatePortfolioThroughRouter(t *testing.T) {
	s := newTestServer(t)

	body := `{"name":"Growth","description":"long horizon"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/portfolios", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-Address", "0x3333333333333333333333333333333333333333")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	p, ok := resp["portfolio"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected portfolio object, got %v", resp)
	}
	if p["id"] == nil {
		t.Error("Expected portfolio id in response")
	}
}

func TestInvestmentFlowThroughRouter(t *testing.T) {
	s := newTestServer(t)
	investor := "0x4444444444444444444444444444444444444444"

	do := func(method, path, caller, body string) *httptest.ResponseRecorder {
		t.Helper()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Caller-Address", caller)
		s.router.ServeHTTP(w, req)
		return w
	}

	// Deposits are admin-only.
	w := do("POST", "/v1/treasury/"+investor+"/deposits", investor, `{"amount":"10000"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for non-admin deposit, got %d: %s", w.Code, w.Body.String())
	}

	w = do("POST", "/v1/treasury/"+investor+"/deposits", testAdmin, `{"amount":"10000","reference":"onramp"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for admin deposit, got %d: %s", w.Code, w.Body.String())
	}

	w = do("POST", "/v1/strategies", testAdmin,
		`{"name":"Stable Yield","protocol":"aave","assetId":"usdc","riskLevel":2,"minInvestment":"100"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating strategy, got %d: %s", w.Code, w.Body.String())
	}

	w = do("POST", "/v1/investments", investor, `{"strategyId":1,"amount":"1000"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating investment, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	inv, ok := resp["investment"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected investment object, got %v", resp)
	}
	if inv["investor"] != investor {
		t.Errorf("Expected investor %s, got %v", investor, inv["investor"])
	}

	// The debit is visible on the investor's balance.
	w = do("GET", "/v1/treasury/"+investor+"/balance", investor, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var balResp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &balResp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	bal, _ := balResp["balance"].(map[string]interface{})
	if bal["available"] != "9000" {
		t.Errorf("Expected available 9000 after investing 1000, got %v", bal["available"])
	}
}

// ---------------------------------------------------------------------------
// Platform info test
// ---------------------------------------------------------------------------

func TestPlatformEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/platform", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	platform, ok := resp["platform"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected platform object, got %v", resp["platform"])
	}
	if platform["admin"] != testAdmin {
		t.Errorf("Expected admin %s, got %v", testAdmin, platform["admin"])
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
