package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/serprank/rank"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rank.PageBudget != 3 {
		t.Errorf("PageBudget = %d, want 3", cfg.Rank.PageBudget)
	}
	if !cfg.Rank.EarlyStop || !cfg.Rank.CountUnidentified {
		t.Error("EarlyStop and CountUnidentified should default to true")
	}
	if !reflect.DeepEqual(cfg.Markers, rank.DefaultMarkers()) {
		t.Error("markers should default to rank.DefaultMarkers")
	}
	if cfg.Marketplace.PageDelayMin != 2*time.Second || cfg.Marketplace.PageDelayMax != 5*time.Second {
		t.Errorf("page delay = [%v, %v]", cfg.Marketplace.PageDelayMin, cfg.Marketplace.PageDelayMax)
	}
	if cfg.Engine.RodTimeout != 30*time.Second || cfg.Engine.RodStealthTimeout != time.Minute {
		t.Errorf("browser tier timeouts = %v, %v", cfg.Engine.RodTimeout, cfg.Engine.RodStealthTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERPRANK_PAGE_BUDGET", "5")
	t.Setenv("SERPRANK_EARLY_STOP", "false")
	t.Setenv("SERPRANK_API_KEYS", "a, b ,,c")
	t.Setenv("SERPRANK_ESCALATION_DELAYS", "0s, 1s")
	t.Setenv("SERPRANK_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rank.PageBudget != 5 {
		t.Errorf("PageBudget = %d, want 5", cfg.Rank.PageBudget)
	}
	if cfg.Rank.EarlyStop {
		t.Error("EarlyStop should be false")
	}
	if !reflect.DeepEqual(cfg.Auth.APIKeys, []string{"a", "b", "c"}) {
		t.Errorf("APIKeys = %v", cfg.Auth.APIKeys)
	}
	if !reflect.DeepEqual(cfg.Engine.EscalationDelays, []time.Duration{0, time.Second}) {
		t.Errorf("EscalationDelays = %v", cfg.Engine.EscalationDelays)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("invalid port should fall back to 8080, got %d", cfg.Server.Port)
	}

	opts := cfg.RankOptions()
	if opts.PageBudget != 5 || opts.EarlyStop {
		t.Errorf("RankOptions = %+v", opts)
	}
}

func TestLoadMarkersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	body := "video: sbv-custom\nbrand:\n  - brand-a\n  - brand-b\nchallenge_title: captcha\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	m := rank.DefaultMarkers()
	if err := LoadMarkersFile(path, &m); err != nil {
		t.Fatalf("LoadMarkersFile: %v", err)
	}
	if m.Video != "sbv-custom" || m.ChallengeTitle != "captcha" {
		t.Errorf("overrides not applied: %+v", m)
	}
	if !reflect.DeepEqual(m.Brand, []string{"brand-a", "brand-b"}) {
		t.Errorf("Brand = %v", m.Brand)
	}
	if m.SearchResult != "s-search-result" {
		t.Errorf("unset keys must keep defaults, SearchResult = %q", m.SearchResult)
	}

	t.Setenv("SERPRANK_MARKERS_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Markers.Video != "sbv-custom" {
		t.Errorf("Load did not apply markers file: %q", cfg.Markers.Video)
	}
}

func TestLoadMarkersFile_Missing(t *testing.T) {
	m := rank.DefaultMarkers()
	if err := LoadMarkersFile(filepath.Join(t.TempDir(), "nope.yaml"), &m); err == nil {
		t.Error("missing file should fail")
	}
}

func TestRunnerOptions(t *testing.T) {
	t.Setenv("SERPRANK_CONCURRENCY", "4")
	t.Setenv("SERPRANK_KEYWORD_DELAY_MAX", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := cfg.RunnerOptions()
	if opts.Concurrency != 4 || opts.MaxAttempts != 3 {
		t.Errorf("concurrency/attempts = %d/%d, want 4/3", opts.Concurrency, opts.MaxAttempts)
	}
	if opts.KeywordDelayMin != 5*time.Second || opts.KeywordDelayMax != 30*time.Second {
		t.Errorf("keyword delay = [%v, %v]", opts.KeywordDelayMin, opts.KeywordDelayMax)
	}
	if cfg.Report.OutputPath != "ranks.csv" {
		t.Errorf("OutputPath = %q", cfg.Report.OutputPath)
	}
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	slog.Info("dropped")
	slog.Warn("kept", "keyword", "cable")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"keyword":"cable"`) {
		t.Errorf("warn line missing or not JSON: %s", out)
	}
}
