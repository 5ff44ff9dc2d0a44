package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/screener/internal/api"
	"github.com/opensource-finance/screener/internal/domain"
)

func writeStrategy(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write strategy: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { market = domain.MarketAShare })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDescribeCommand(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		path := writeStrategy(t, `{"conditions": [
			{"type": "simple", "field": "pb", "operator": "lt", "value": 1},
			{"type": "simple", "field": "dividendYield", "operator": "gt", "value": 3, "logicOp": "or"}
		]}`)
		out, err := execute(t, "describe", path)
		if err != nil {
			t.Fatalf("describe failed: %v", err)
		}
		if strings.TrimSpace(out) != "市净率(PB)<1倍 或 股息率>3%" {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		path := writeStrategy(t, `{"conditions": [{"type": "simple", "field": "pe", "operator": "lt", "value": "abc"}]}`)
		if _, err := execute(t, "describe", path); err == nil || !strings.Contains(err.Error(), domain.ErrInvalidValue.Error()) {
			t.Errorf("expected invalid value error, got %v", err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := execute(t, "describe", filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestProjectCommand(t *testing.T) {
	path := writeStrategy(t, `{"conditions": [
		{"type": "simple", "field": "pb", "operator": "lte", "value": 0.8},
		{"type": "simple", "field": "marketCap", "operator": "lt", "value": 100}
	]}`)

	out, err := execute(t, "project", path, "--market", domain.MarketHK)
	if err != nil {
		t.Fatalf("project failed: %v", err)
	}

	var resp api.ProjectResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	if !resp.Projectable || resp.Params.Market != domain.MarketHK {
		t.Errorf("unexpected projection %+v", resp)
	}
	if resp.Params.PBMax == nil || *resp.Params.PBMax != 0.8 || resp.Params.MarketCapMax == nil || *resp.Params.MarketCapMax != 100 {
		t.Errorf("unexpected bounds %+v", resp.Params)
	}

	if _, err := execute(t, "project", path, "--market", "nyse"); err == nil {
		t.Error("expected error for unknown market")
	}
}
