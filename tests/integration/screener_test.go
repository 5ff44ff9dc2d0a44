//go:build integration
// +build integration

// Package integration provides end-to-end tests for a running screener.
//
// These tests drive the HTTP API the way the strategy editor does:
//
//	Strategy → Describe → Evaluate / Run → Stored Run
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
//  1. RECORD: one stock quote. A code, a name and numeric fields such as
//     pe, pb, dividendYield (percent) and marketCap (亿).
//
//  2. CONDITION: a simple comparison on one field, or a derived comparison
//     on two fields combined with ×, ÷, + or -.
//
//  3. STRATEGY: an ordered list of conditions folded strictly left to
//     right. Each condition after the first joins the running result with
//     its own AND / OR. There is no precedence.
//
//  4. ROUTE: strategies made only of simple conditions are projected onto
//     the quote provider's filter endpoint (remote, approximate). Any
//     derived condition forces a full universe fetch evaluated in process
//     (local, exact).
//
// The /evaluate scenarios need no market data. The run scenarios need the
// server to reach a quote source; point it at a static universe with
// SCREENER_QUOTES_TYPE=static to run them offline.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("SCREENER_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching the screener's API contract)
// ============================================================================

// Condition is one condition document.
type Condition struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Field    string `json:"field,omitempty"`
	Field1   string `json:"field1,omitempty"`
	CalcOp   string `json:"calcOp,omitempty"`
	Field2   string `json:"field2,omitempty"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Value2   any    `json:"value2,omitempty"`
	LogicOp  string `json:"logicOp,omitempty"`
}

// Strategy is a strategy document.
type Strategy struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Conditions  []Condition `json:"conditions"`
	Summary     string      `json:"summary,omitempty"`
	Projectable bool        `json:"projectable,omitempty"`
}

// EvaluateRequest is the body of POST /evaluate
type EvaluateRequest struct {
	Strategy Strategy         `json:"strategy"`
	Records  []map[string]any `json:"records"`
}

// EvaluateResponse is what POST /evaluate returns
type EvaluateResponse struct {
	Matches     []bool           `json:"matches"`
	Matched     []map[string]any `json:"matched"`
	Total       int              `json:"total"`
	Description string           `json:"description"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Run is what POST /strategies/{id}/run returns
type Run struct {
	ID          string           `json:"id"`
	StrategyID  string           `json:"strategyId"`
	Route       string           `json:"route"`
	Description string           `json:"description"`
	Records     []map[string]any `json:"records"`
	Total       int              `json:"total"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, in any, wantStatus int, out any) {
	t.Helper()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
}

func evaluate(t *testing.T, config TestConfig, req EvaluateRequest) EvaluateResponse {
	t.Helper()
	var result EvaluateResponse
	call(t, config, http.MethodPost, "/evaluate", req, http.StatusOK, &result)
	return result
}

var universe = []map[string]any{
	{"code": "601398", "name": "工商银行", "pe": 5.2, "pb": 0.6, "dividendYield": 6.1, "marketCap": 20000},
	{"code": "600519", "name": "贵州茅台", "pe": 28, "pb": 9, "dividendYield": 1.5, "marketCap": 22000},
	{"code": "600036", "name": "招商银行", "pe": 6.2, "pb": 0.9, "dividendYield": 5.2, "marketCap": 9000},
	{"code": "000002", "name": "万科A", "pe": -3, "pb": 0.4, "dividendYield": 0, "marketCap": 1100},
}

// ============================================================================
// SCENARIO 1: The Graham Number
// ============================================================================

func TestGrahamNumber(t *testing.T) {
	/*
	   SCENARIO: pe × pb < 22.5 over four well known names

	   EXPECTED BEHAVIOR:
	   - 工商银行: 5.2 × 0.6 = 3.12  → match
	   - 贵州茅台: 28 × 9 = 252      → no match
	   - 招商银行: 6.2 × 0.9 = 5.58  → match
	   - 万科A:    -3 × 0.4 = -1.2   → match (negative earnings are not excluded)
	*/
	config := getTestConfig()

	result := evaluate(t, config, EvaluateRequest{
		Strategy: Strategy{Conditions: []Condition{
			{Type: "calc", Field1: "pe", CalcOp: "mul", Field2: "pb", Operator: "lt", Value: 22.5},
		}},
		Records: universe,
	})

	want := []bool{true, false, true, true}
	for i, w := range want {
		if result.Matches[i] != w {
			t.Errorf("%s: expected %v, got %v", universe[i]["name"], w, result.Matches[i])
		}
	}
	if result.Metadata.TraceID == "" {
		t.Error("Expected traceId in metadata")
	}
}

// ============================================================================
// SCENARIO 2: Strict Left Fold
// ============================================================================

func TestLeftFoldWithoutPrecedence(t *testing.T) {
	/*
	   SCENARIO: pb < 1 OR dividendYield > 5 AND pe > 0

	   The fold reads ((pb < 1) OR (dividendYield > 5)) AND (pe > 0).
	   With AND binding tighter, 万科A (pb 0.4, pe -3) would match. It must not.
	*/
	config := getTestConfig()

	result := evaluate(t, config, EvaluateRequest{
		Strategy: Strategy{Conditions: []Condition{
			{Type: "simple", Field: "pb", Operator: "lt", Value: 1},
			{Type: "simple", Field: "dividendYield", Operator: "gt", Value: 5, LogicOp: "or"},
			{Type: "simple", Field: "pe", Operator: "gt", Value: 0, LogicOp: "and"},
		}},
		Records: universe,
	})

	want := []bool{true, false, true, false}
	for i, w := range want {
		if result.Matches[i] != w {
			t.Errorf("%s: expected %v, got %v", universe[i]["name"], w, result.Matches[i])
		}
	}
	if result.Description != "市净率(PB)<1倍 或 股息率>5% 且 市盈率(PE)>0倍" {
		t.Errorf("Unexpected description %q", result.Description)
	}
}

// ============================================================================
// SCENARIO 3: Saved Strategy Lifecycle
// ============================================================================

func TestStrategyLifecycle(t *testing.T) {
	/*
	   SCENARIO: save a strategy, run it, read the stored run back

	   EXPECTED BEHAVIOR:
	   - A strategy with a derived condition is not projectable → local route
	   - The stored run is readable by id under the same tenant only
	*/
	config := getTestConfig()

	var created Strategy
	call(t, config, http.MethodPost, "/strategies", Strategy{
		Name: "格雷厄姆",
		Conditions: []Condition{
			{Type: "calc", Field1: "pe", CalcOp: "mul", Field2: "pb", Operator: "lt", Value: 22.5},
			{Type: "simple", Field: "dividendYield", Operator: "gte", Value: 3, LogicOp: "and"},
		},
	}, http.StatusCreated, &created)

	if created.ID == "" || created.Projectable {
		t.Fatalf("Unexpected strategy %+v", created)
	}

	var run Run
	call(t, config, http.MethodPost, "/strategies/"+created.ID+"/run", nil, http.StatusOK, &run)
	if run.Route != "local" || run.StrategyID != created.ID {
		t.Errorf("Unexpected run %+v", run)
	}

	var stored Run
	call(t, config, http.MethodGet, "/runs/"+run.ID, nil, http.StatusOK, &stored)
	if stored.Total != run.Total {
		t.Errorf("Stored run differs: %d vs %d", stored.Total, run.Total)
	}

	other := config
	other.TenantID = config.TenantID + "-other"
	call(t, other, http.MethodGet, "/runs/"+run.ID, nil, http.StatusNotFound, nil)

	call(t, config, http.MethodDelete, "/strategies/"+created.ID, nil, http.StatusOK, nil)
}

// ============================================================================
// SCENARIO 4: Invalid Strategies Are Rejected Before Any Fetch
// ============================================================================

func TestInvalidStrategyRejected(t *testing.T) {
	config := getTestConfig()

	var resp map[string]any
	call(t, config, http.MethodPost, "/strategies", Strategy{
		Name: "区间缺值",
		Conditions: []Condition{
			{Type: "simple", Field: "pe", Operator: "between", Value: 5},
		},
	}, http.StatusBadRequest, &resp)

	if resp["error"] != "区间条件需要两个值" {
		t.Errorf("Unexpected error %v", resp["error"])
	}
}

// ============================================================================
// SCENARIO 5: Templates
// ============================================================================

func TestTemplates(t *testing.T) {
	config := getTestConfig()

	var list struct {
		Count int `json:"count"`
	}
	call(t, config, http.MethodGet, "/templates", nil, http.StatusOK, &list)
	if list.Count != 4 {
		t.Errorf("Expected 4 templates, got %d", list.Count)
	}

	var result struct {
		Total int `json:"total"`
	}
	call(t, config, http.MethodPost, "/templates/graham/apply", nil, http.StatusOK, &result)
	t.Logf("graham template matched %d records", result.Total)
}
