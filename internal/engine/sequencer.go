package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"trade_sim/internal/domain"
	"trade_sim/internal/infra"
)

// ErrSequencerStopped is returned for jobs the loop will never run.
var ErrSequencerStopped = errors.New("sequencer stopped")

// Ledger is the account side driven by the Sequencer.
// service.PortfolioService implements it.
type Ledger interface {
	Buy(symbol string, quantity int) (domain.Transaction, error)
	Sell(symbol string, quantity int) (domain.Transaction, error)
	Restore(state domain.SessionState) error
	Snapshot() domain.SessionState
}

// TickReport is emitted after every processed tick.
type TickReport struct {
	Seq    uint64    `json:"seq"`
	At     time.Time `json:"at"`
	Quotes []Quote   `json:"quotes"`
}

type job struct {
	name    string
	ctx     context.Context
	run     func()
	done    chan struct{}
	skipped bool // caller gave up before the job started
}

// Sequencer is the single-threaded processor that serializes every mutation
// of the market and the ledger. Ticks from the timer and trades from the
// console never interleave.
type Sequencer struct {
	inbox   chan *job
	stopped chan struct{}
	market  *MarketEngine
	ledger  Ledger
	nextSeq uint64
	metrics *infra.Metrics

	// Boundary: used to notify the feed of new prices
	onTick func(TickReport)

	dumpPath string
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, market *MarketEngine, ledger Ledger, onTick func(TickReport)) *Sequencer {
	return &Sequencer{
		inbox:    make(chan *job, inboxSize),
		stopped:  make(chan struct{}),
		market:   market,
		ledger:   ledger,
		nextSeq:  1,
		metrics:  infra.GlobalMetrics,
		onTick:   onTick,
		dumpPath: "panic_dump.json",
	}
}

// SetMetrics replaces the metrics sink (tests use a private instance).
func (s *Sequencer) SetMetrics(m *infra.Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// SetDumpPath changes where the post-mortem snapshot is written.
func (s *Sequencer) SetDumpPath(path string) {
	s.dumpPath = path
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started")
	defer close(s.stopped)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r), slog.Uint64("seq", s.nextSeq))
			s.DumpState(s.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case j := <-s.inbox:
			s.process(j)
		}
	}
}

func (s *Sequencer) process(j *job) {
	if j.ctx.Err() != nil {
		j.skipped = true
		slog.Debug("Job skipped, caller cancelled", slog.String("job", j.name))
		close(j.done)
		return
	}
	start := time.Now()
	j.run()
	s.metrics.RecordEvent(time.Since(start).Nanoseconds())
	slog.Debug("Job processed", slog.String("job", j.name), slog.Uint64("seq", s.nextSeq))
	s.nextSeq++
	close(j.done)
}

// submit enqueues fn and waits for it to finish. A job whose ctx is done
// before it starts is skipped and reports ctx.Err(); once started it always
// completes and its outcome is returned, even if ctx ends meanwhile.
func (s *Sequencer) submit(ctx context.Context, name string, fn func()) error {
	j := &job{name: name, ctx: ctx, run: fn, done: make(chan struct{})}
	select {
	case s.inbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrSequencerStopped
	}

	select {
	case <-j.done:
	case <-s.stopped:
		select {
		case <-j.done:
		default:
			return ErrSequencerStopped
		}
	}
	if j.skipped {
		return ctx.Err()
	}
	return nil
}

// Do runs fn inside the loop. Use it for consistent multi-field reads.
func (s *Sequencer) Do(ctx context.Context, fn func()) error {
	return s.submit(ctx, "read", fn)
}

// Tick advances the market by one step and notifies the boundary callback.
func (s *Sequencer) Tick(ctx context.Context) ([]Quote, error) {
	var quotes []Quote
	err := s.submit(ctx, "tick", func() {
		quotes = s.market.Tick()
		s.metrics.RecordTick()
		if s.onTick != nil {
			s.onTick(TickReport{Seq: s.nextSeq, At: time.Now(), Quotes: quotes})
		}
	})
	return quotes, err
}

// Buy executes a market buy through the ledger.
func (s *Sequencer) Buy(ctx context.Context, symbol string, quantity int) (domain.Transaction, error) {
	return s.trade(ctx, domain.SideBuy, symbol, quantity)
}

// Sell executes a market sell through the ledger.
func (s *Sequencer) Sell(ctx context.Context, symbol string, quantity int) (domain.Transaction, error) {
	return s.trade(ctx, domain.SideSell, symbol, quantity)
}

func (s *Sequencer) trade(ctx context.Context, side domain.TradeSide, symbol string, quantity int) (domain.Transaction, error) {
	var (
		tx     domain.Transaction
		opErr  error
		seqNum uint64
	)
	err := s.submit(ctx, side.String(), func() {
		seqNum = s.nextSeq
		if side == domain.SideBuy {
			tx, opErr = s.ledger.Buy(symbol, quantity)
		} else {
			tx, opErr = s.ledger.Sell(symbol, quantity)
		}
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if opErr != nil {
		s.metrics.RecordRejection()
		slog.Warn("Order rejected",
			slog.Uint64("seq", seqNum),
			slog.String("side", side.String()),
			slog.String("symbol", symbol),
			slog.Int("quantity", quantity),
			slog.Any("error", opErr))
		return domain.Transaction{}, opErr
	}

	s.metrics.RecordOrderFilled()
	slog.Info("Order filled",
		slog.Uint64("seq", seqNum),
		slog.String("id", tx.ID.String()),
		slog.String("side", tx.Side.String()),
		slog.String("symbol", tx.Symbol),
		slog.Int("quantity", tx.Quantity),
		slog.String("price", tx.PricePerShare.String()))
	return tx, nil
}

// Restore replaces ledger and market state from a saved session.
func (s *Sequencer) Restore(ctx context.Context, state domain.SessionState) error {
	var opErr error
	if err := s.submit(ctx, "restore", func() { opErr = s.ledger.Restore(state) }); err != nil {
		return err
	}
	return opErr
}

// Snapshot captures the current session between two jobs.
func (s *Sequencer) Snapshot(ctx context.Context) (domain.SessionState, error) {
	var state domain.SessionState
	err := s.submit(ctx, "snapshot", func() { state = s.ledger.Snapshot() })
	return state, err
}

// DumpState writes the ledger snapshot to a file (for post-mortem).
// It reads state without going through the inbox and must only be called
// from the loop goroutine or after it stopped.
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq uint64              `json:"next_seq"`
		Session domain.SessionState `json:"session"`
	}{
		NextSeq: s.nextSeq,
		Session: s.ledger.Snapshot(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
