package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"trade_sim/internal/engine"
	"trade_sim/internal/infra"

	"github.com/shopspring/decimal"
)

func newConsole(t *testing.T) (*Console, *Bootstrap, *bytes.Buffer) {
	t.Helper()
	b := start(t, testConfig(t, infra.BackendJSON))
	var out bytes.Buffer
	return NewConsole(b, &out), b, &out
}

func TestConsole_Trades(t *testing.T) {
	c, b, out := newConsole(t)
	ctx := context.Background()

	for _, line := range []string{"buy AAPL 2", "sell aapl 1"} {
		if err := c.Execute(ctx, line); err != nil {
			t.Fatalf("%q failed: %v", line, err)
		}
	}

	text := out.String()
	if !strings.Contains(text, "BUY 2 AAPL @ $150.00 = $300.00") {
		t.Errorf("missing buy line in %q", text)
	}
	if !strings.Contains(text, "SELL 1 AAPL @ $150.00") || !strings.Contains(text, "P&L $0.00") {
		t.Errorf("missing sell line in %q", text)
	}
	if !b.Service.Balance().Equal(decimal.NewFromInt(9850)) {
		t.Errorf("Expected balance 9850, got %s", b.Service.Balance())
	}
}

func TestConsole_Rejections(t *testing.T) {
	c, _, out := newConsole(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"buy NVDA 1", "rejected: stock NVDA not found"},
		{"buy AAPL 0", "rejected:"},
		{"sell TSLA 1", "rejected:"},
		{"buy AAPL 1000", "rejected:"},
		{"buy AAPL x", "invalid quantity"},
		{"buy AAPL", "usage: buy"},
		{"dance", "unknown command"},
		{"tick 0", "invalid tick count"},
		{"tick 10001", "invalid tick count"},
		{"tick many", "invalid tick count"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			if err := c.Execute(ctx, tt.line); err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("Expected %q in %q", tt.want, out.String())
			}
		})
	}
}

func TestConsole_Views(t *testing.T) {
	c, _, out := newConsole(t)
	ctx := context.Background()

	_ = c.Execute(ctx, "status")
	if !strings.Contains(out.String(), "cash $10,000.00") || !strings.Contains(out.String(), "no holdings") {
		t.Errorf("unexpected status %q", out.String())
	}

	out.Reset()
	_ = c.Execute(ctx, "history")
	if !strings.Contains(out.String(), "no transactions") {
		t.Errorf("unexpected history %q", out.String())
	}

	out.Reset()
	_ = c.Execute(ctx, "tick 3")
	if !strings.Contains(out.String(), "BTCUSD") {
		t.Errorf("tick should print quotes, got %q", out.String())
	}

	out.Reset()
	_ = c.Execute(ctx, "chart msft 3")
	if n := len([]rune(strings.Fields(out.String())[0])); n != 3 {
		t.Errorf("Expected 3-point sparkline, got %q", out.String())
	}

	out.Reset()
	_ = c.Execute(ctx, "buy MSFT 1")
	_ = c.Execute(ctx, "status")
	if !strings.Contains(out.String(), "MSFT") {
		t.Errorf("status should list holding, got %q", out.String())
	}
}

func TestConsole_SaveAndQuit(t *testing.T) {
	c, b, out := newConsole(t)
	ctx := context.Background()

	in := strings.NewReader("buy PLTR 1\nsave\nquit\nbuy PLTR 1\n")
	if err := c.Run(ctx, in); !errors.Is(err, ErrQuit) {
		t.Fatalf("Expected ErrQuit, got %v", err)
	}
	if !strings.Contains(out.String(), "session saved") {
		t.Errorf("missing save confirmation in %q", out.String())
	}
	if len(b.Service.Transactions()) != 1 {
		t.Errorf("commands after quit must not run, got %d transactions", len(b.Service.Transactions()))
	}

	state, err := b.Repository.LoadSession(ctx)
	if err != nil || state == nil || len(state.Transactions) != 1 {
		t.Fatalf("Expected saved session with 1 transaction, got %v %v", state, err)
	}
}

func TestConsole_RunEOF(t *testing.T) {
	c, _, _ := newConsole(t)
	if err := c.Run(context.Background(), strings.NewReader("help\n")); err != nil {
		t.Errorf("Expected nil on EOF, got %v", err)
	}
}

func TestConsole_TickLimit(t *testing.T) {
	c, b, out := newConsole(t)
	ctx := context.Background()

	_ = c.Execute(ctx, "tick 100000000")
	if !strings.Contains(out.String(), "invalid tick count") {
		t.Errorf("Expected rejection above the cap, got %q", out.String())
	}
	if ticks := b.Metrics.Snapshot().TicksProcessed; ticks != 0 {
		t.Errorf("Expected no ticks, got %d", ticks)
	}

	out.Reset()
	_ = c.Execute(ctx, "tick 10000")
	if strings.Contains(out.String(), "invalid tick count") {
		t.Errorf("tick at the cap should run, got %q", out.String())
	}
	if ticks := b.Metrics.Snapshot().TicksProcessed; ticks != 10000 {
		t.Errorf("Expected 10000 ticks, got %d", ticks)
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in     string
		money  string
		signed string
	}{
		{"10000", "$10,000.00", "+$10,000.00"},
		{"150.1251", "$150.13", "+$150.13"},
		{"0", "$0.00", "$0.00"},
		{"-12.5", "-$12.50", "-$12.50"},
	}
	for _, tt := range tests {
		d := decimal.RequireFromString(tt.in)
		if got := money(d); got != tt.money {
			t.Errorf("money(%s): Expected %s, got %s", tt.in, tt.money, got)
		}
		if got := signed(d); got != tt.signed {
			t.Errorf("signed(%s): Expected %s, got %s", tt.in, tt.signed, got)
		}
	}
}

func TestSparkline(t *testing.T) {
	prices := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(5), decimal.NewFromInt(9)}
	if got := sparkline(prices); got != "▁▅█" {
		t.Errorf("Expected ▁▅█, got %s", got)
	}
	flat := []decimal.Decimal{decimal.NewFromInt(2), decimal.NewFromInt(2)}
	if got := sparkline(flat); got != "▁▁" {
		t.Errorf("Expected ▁▁, got %s", got)
	}
}

func TestConsole_Alerts(t *testing.T) {
	c, b, out := newConsole(t)
	ctx := context.Background()

	_ = c.Execute(ctx, "alert aapl 1")
	if !strings.Contains(out.String(), "alert #1: AAPL DOWN $1.00") {
		t.Fatalf("unexpected output %q", out.String())
	}
	_ = c.Execute(ctx, "alert AAPL 100000 persist")
	_ = c.Execute(ctx, "alert NVDA 10")
	if !strings.Contains(out.String(), "rejected: stock NVDA not found") {
		t.Errorf("Expected rejection for NVDA, got %q", out.String())
	}

	out.Reset()
	_ = c.Execute(ctx, "alerts")
	if !strings.Contains(out.String(), "#1 AAPL DOWN $1.00 (once, armed)") || !strings.Contains(out.String(), "(persist, armed)") {
		t.Errorf("unexpected alert list %q", out.String())
	}

	out.Reset()
	_ = c.Execute(ctx, "unalert 1")
	_ = c.Execute(ctx, "unalert 1")
	if !strings.Contains(out.String(), "alert #1 removed") || !strings.Contains(out.String(), "no alert #1") {
		t.Errorf("unexpected unalert output %q", out.String())
	}

	// fire an alert by forcing the price through the target
	out.Reset()
	_ = c.Execute(ctx, "alert TSLA 220.01")
	_ = b.Sequencer.Do(ctx, func() {
		s, _ := b.Market.FindBySymbol("TSLA")
		_ = s.SetPrice(decimal.NewFromInt(300))
	})
	b.Watcher.OnTick(engine.TickReport{Seq: 99, Quotes: []engine.Quote{{Symbol: "TSLA", Price: decimal.NewFromInt(300)}}})
	_ = c.Execute(ctx, "events")
	if !strings.Contains(out.String(), "alert #3: TSLA UP 220.01") {
		t.Errorf("Expected fired alert in events, got %q", out.String())
	}
}
