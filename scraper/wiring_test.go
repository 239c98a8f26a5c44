package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/use-agent/serprank/config"
	"github.com/use-agent/serprank/engine"
	"github.com/use-agent/serprank/models"
	"github.com/use-agent/serprank/rank"
)

func TestBlockedValidator(t *testing.T) {
	det, err := rank.NewDetector(rank.DefaultMarkers())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	v := blockedValidator(det)

	err = v(&engine.FetchResult{EngineName: "http", HTML: `<html><head><title>Robot Check</title></head></html>`})
	if !errors.Is(err, rank.ErrBlocked) {
		t.Errorf("challenge page: err = %v, want ErrBlocked", err)
	}
	if err := v(&engine.FetchResult{HTML: middlePageMarkup}); err != nil {
		t.Errorf("results page rejected: %v", err)
	}
}

func TestSessionsOpensIndependentPagers(t *testing.T) {
	newSession := Sessions(&fakeFetcher{}, config.MarketplaceConfig{
		BaseURL:  "https://www.amazon.co.jp",
		PageRate: 2,
	})
	a, err := newSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	b, _ := newSession()
	pa, pb := a.(*Pager), b.(*Pager)
	if pa == pb {
		t.Fatal("sessions should not share a pager")
	}
	if pa.opts.Limiter == nil || pa.opts.Limiter != pb.opts.Limiter {
		t.Error("sessions should share one limiter")
	}
}

func TestSessionsBadSelector(t *testing.T) {
	newSession := Sessions(&fakeFetcher{}, config.MarketplaceConfig{
		BaseURL:              "https://www.amazon.co.jp",
		NextDisabledSelector: "[[",
	})
	if _, err := newSession(); err == nil {
		t.Error("invalid selector should fail")
	}
}

func TestTerminalDispatchError(t *testing.T) {
	blocked := fmt.Errorf("http: %w", rank.ErrBlocked)
	allRejected := fmt.Errorf("dispatcher: %w: %w", engine.ErrAllRejected, blocked)
	mixed := fmt.Errorf("dispatcher: all engines failed: %w", errors.Join(blocked, context.DeadlineExceeded))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		err      error
		wantCode string
	}{
		{"every engine challenged", context.Background(), allRejected, models.ErrCodeBlocked},
		{"challenge and timeout fall back", context.Background(), mixed, ""},
		{"plain failure falls back", context.Background(), errors.New("connection reset"), ""},
		{"cancelled caller", cancelled, errors.Join(blocked, context.Canceled), models.ErrCodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := terminalDispatchError(tt.ctx, tt.err)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("err = %v, want nil (fall back to rod)", err)
				}
				return
			}
			var se *models.ScrapeError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *ScrapeError", err)
			}
			if se.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", se.Code, tt.wantCode)
			}
		})
	}
}

func TestBrowserTierPinsStealthAndTimeout(t *testing.T) {
	var got engine.FetchRequest
	load := func(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
		got = *req
		return &engine.FetchResult{HTML: "<html></html>", EngineName: "browser"}, nil
	}
	req := &engine.FetchRequest{URL: "https://www.amazon.co.jp/s?k=a", Timeout: time.Minute, Stealth: true}

	tests := []struct {
		name        string
		tier        *browserTier
		wantStealth bool
		wantTimeout time.Duration
	}{
		{"plain tier drops stealth", newBrowserTier(load, engine.NameRod, false, 30*time.Second), false, 30 * time.Second},
		{"stealth tier", newBrowserTier(load, engine.NameRodStealth, true, 45*time.Second), true, 45 * time.Second},
		{"zero timeout keeps request", newBrowserTier(load, engine.NameRod, false, 0), false, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.tier.Fetch(context.Background(), req)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got.Stealth != tt.wantStealth {
				t.Errorf("Stealth = %v, want %v", got.Stealth, tt.wantStealth)
			}
			if got.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", got.Timeout, tt.wantTimeout)
			}
			if res.EngineName != tt.tier.Name() {
				t.Errorf("EngineName = %q, want %q", res.EngineName, tt.tier.Name())
			}
		})
	}
	if !req.Stealth || req.Timeout != time.Minute {
		t.Error("tier mutated the caller's request")
	}
}

func TestBrowserTierWrapsError(t *testing.T) {
	load := func(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
		return nil, context.DeadlineExceeded
	}
	_, err := newBrowserTier(load, engine.NameRod, false, time.Second).Fetch(context.Background(), &engine.FetchRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}
