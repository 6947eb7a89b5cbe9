package app

import (
	"fmt"
	"log/slog"
	"time"

	"trade_sim/internal/engine"
	"trade_sim/internal/infra/feed"
	"trade_sim/internal/service"
	"trade_sim/internal/strategy"
)

const maxEvents = 100

// Event is a fired alert or strategy signal.
type Event struct {
	Type    string    `json:"type"` // "alert" or "signal"
	At      time.Time `json:"at"`
	Seq     uint64    `json:"seq"`
	Symbol  string    `json:"symbol"`
	Message string    `json:"message"`
}

// Watcher runs after every tick inside the Sequencer: it pushes quotes to
// the feed, checks alerts and feeds the strategies.
type Watcher struct {
	hub        *feed.Hub
	alerts     *service.AlertBook
	strategies []strategy.Strategy
	events     []Event
}

func NewWatcher(hub *feed.Hub, alerts *service.AlertBook, strategies []strategy.Strategy) *Watcher {
	return &Watcher{hub: hub, alerts: alerts, strategies: strategies}
}

// OnTick is the Sequencer's tick callback.
func (w *Watcher) OnTick(r engine.TickReport) {
	if w.hub != nil {
		w.hub.Broadcast(r)
	}

	if w.alerts != nil {
		for _, a := range w.alerts.Check(r.Quotes) {
			w.record(Event{
				Type:    "alert",
				At:      r.At,
				Seq:     r.Seq,
				Symbol:  a.Symbol,
				Message: fmt.Sprintf("alert #%d: %s %s %s", a.ID, a.Symbol, a.Direction, a.TargetPrice.StringFixed(2)),
			})
		}
	}

	for _, q := range r.Quotes {
		for _, s := range w.strategies {
			if s.Symbol() != q.Symbol {
				continue
			}
			for _, sig := range s.OnQuote(q) {
				w.record(Event{
					Type:   "signal",
					At:     r.At,
					Seq:    r.Seq,
					Symbol: sig.Symbol,
					Message: fmt.Sprintf("%s %s @ %s (sma %s / %s)", sig.Type, sig.Symbol,
						sig.Price.StringFixed(2), sig.ShortSMA.StringFixed(2), sig.LongSMA.StringFixed(2)),
				})
			}
		}
	}
}

func (w *Watcher) record(e Event) {
	slog.Info("Market event", slog.String("type", e.Type), slog.String("symbol", e.Symbol), slog.String("message", e.Message))
	if len(w.events) == maxEvents {
		copy(w.events, w.events[1:])
		w.events = w.events[:maxEvents-1]
	}
	w.events = append(w.events, e)
	if w.hub != nil {
		w.hub.Publish(e)
	}
}

// Events returns the last n events, oldest first.
func (w *Watcher) Events(n int) []Event {
	if n <= 0 || n > len(w.events) {
		n = len(w.events)
	}
	out := make([]Event, n)
	copy(out, w.events[len(w.events)-n:])
	return out
}
