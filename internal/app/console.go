package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"trade_sim/internal/domain"
	"trade_sim/internal/engine"
	"trade_sim/internal/service"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// maxTickCount bounds "tick N" so one command cannot stall the session.
const maxTickCount = 10000

// ErrQuit is returned by Console.Run when the user asked to exit.
var ErrQuit = errors.New("quit requested")

const consoleHelp = `commands:
  buy <SYMBOL> <QTY>     market buy
  sell <SYMBOL> <QTY>    market sell
  tick [N]               advance the market N steps (default 1, max 10000)
  market                 list quotes
  status                 balance, P&L and holdings
  history [N]            last N transactions (default 10)
  chart <SYMBOL> [N]     last N prices of a stock (default 20)
  alert <SYMBOL> <PRICE> [persist]
                         notify when the price reaches PRICE
  alerts                 list alerts
  unalert <ID>           remove an alert
  events [N]             last N fired alerts and SMA signals
  save                   persist the session
  help                   this text
  quit                   save and exit`

// Console is the line-oriented trading terminal. Every read and write goes
// through the Sequencer, so output is consistent with concurrent ticks.
type Console struct {
	seq     *engine.Sequencer
	svc     *service.PortfolioService
	alerts  *service.AlertBook
	watcher *Watcher
	save    func(context.Context) error
	out     io.Writer
}

// NewConsole creates a console over the components built by b.
func NewConsole(b *Bootstrap, out io.Writer) *Console {
	return &Console{
		seq:     b.Sequencer,
		svc:     b.Service,
		alerts:  b.Alerts,
		watcher: b.Watcher,
		save:    b.SaveSession,
		out:     out,
	}
}

// Run reads commands from in until EOF, ctx cancellation or "quit".
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, "type 'help' for commands")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.Execute(ctx, line); err != nil {
				return err
			}
		}
	}
}

// Execute runs one command line. Only ErrQuit and context errors are
// returned; trade rejections are printed.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	var err error
	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "buy", "sell":
		err = c.trade(ctx, cmd, args)
	case "tick":
		err = c.tick(ctx, args)
	case "market", "quotes":
		err = c.market(ctx)
	case "status":
		err = c.status(ctx)
	case "history":
		err = c.history(ctx, args)
	case "chart":
		err = c.chart(ctx, args)
	case "alert":
		err = c.addAlert(ctx, args)
	case "alerts":
		err = c.listAlerts(ctx)
	case "unalert":
		err = c.removeAlert(ctx, args)
	case "events":
		err = c.events(ctx, args)
	case "save":
		err = c.doSave(ctx)
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "quit", "exit":
		return ErrQuit
	default:
		fmt.Fprintf(c.out, "unknown command %q, type 'help'\n", cmd)
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return nil
}

func (c *Console) trade(ctx context.Context, side string, args []string) error {
	if len(args) != 2 {
		fmt.Fprintf(c.out, "usage: %s <SYMBOL> <QTY>\n", side)
		return nil
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "invalid quantity %q\n", args[1])
		return nil
	}

	var tx domain.Transaction
	if side == "buy" {
		tx, err = c.seq.Buy(ctx, args[0], qty)
	} else {
		tx, err = c.seq.Sell(ctx, args[0], qty)
	}
	if domain.IsRejection(err) {
		fmt.Fprintf(c.out, "rejected: %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s %d %s @ %s = %s", tx.Side, tx.Quantity, tx.Symbol, money(tx.PricePerShare), money(tx.TotalValue()))
	if tx.RealizedPnL.Valid {
		fmt.Fprintf(c.out, " (P&L %s)", signed(tx.RealizedPnL.Decimal))
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *Console) tick(ctx context.Context, args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 || v > maxTickCount {
			fmt.Fprintf(c.out, "invalid tick count %q (1-%d)\n", args[0], maxTickCount)
			return nil
		}
		n = v
	}
	var quotes []engine.Quote
	for i := 0; i < n; i++ {
		var err error
		if quotes, err = c.seq.Tick(ctx); err != nil {
			return err
		}
	}
	c.printQuotes(quotes)
	return nil
}

func (c *Console) market(ctx context.Context) error {
	var quotes []engine.Quote
	if err := c.seq.Do(ctx, func() {
		for _, s := range c.svc.AllStocks() {
			quotes = append(quotes, engine.Quote{Symbol: s.Symbol(), Name: s.Name(), Price: s.Price(), LastChange: s.LastChange()})
		}
	}); err != nil {
		return err
	}
	c.printQuotes(quotes)
	return nil
}

func (c *Console) printQuotes(quotes []engine.Quote) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tNAME\tPRICE\tCHANGE\t")
	for _, q := range quotes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", q.Symbol, q.Name, money(q.Price), signed(q.LastChange))
	}
	w.Flush()
}

func (c *Console) status(ctx context.Context) error {
	var (
		balance, realized, unrealized, total decimal.Decimal
		items                                []domain.PortfolioItem
	)
	if err := c.seq.Do(ctx, func() {
		balance = c.svc.Balance()
		realized = c.svc.RealizedPnL()
		unrealized = c.svc.UnrealizedPnL()
		total = c.svc.TotalValue()
		items = c.svc.Items()
	}); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "cash %s | total %s | realized %s | unrealized %s\n",
		money(balance), money(total), signed(realized), signed(unrealized))
	if len(items) == 0 {
		fmt.Fprintln(c.out, "no holdings")
		return nil
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tQTY\tAVG\tPRICE\tVALUE\tP&L\t")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t\n", it.Symbol(), it.Quantity(),
			money(it.AverageCost()), money(it.Stock().Price()), money(it.TotalValue()), signed(it.UnrealizedPnL()))
	}
	w.Flush()
	return nil
}

func (c *Console) history(ctx context.Context, args []string) error {
	n := 10
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	var txs []domain.Transaction
	if err := c.seq.Do(ctx, func() { txs = c.svc.Transactions() }); err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Fprintln(c.out, "no transactions")
		return nil
	}
	if len(txs) > n {
		txs = txs[len(txs)-n:]
	}
	for _, tx := range txs {
		fmt.Fprintln(c.out, tx.String())
	}
	return nil
}

func (c *Console) chart(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "usage: chart <SYMBOL> [N]")
		return nil
	}
	n := 20
	if len(args) > 1 {
		if v, err := strconv.Atoi(args[1]); err == nil && v > 0 {
			n = v
		}
	}
	var (
		history []decimal.Decimal
		found   bool
	)
	sym := domain.NormalizeSymbol(args[0])
	if err := c.seq.Do(ctx, func() {
		for _, s := range c.svc.AllStocks() {
			if s.Symbol() == sym {
				history, found = s.PriceHistory(), true
				return
			}
		}
	}); err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(c.out, "rejected: %v\n", &domain.NotFoundError{Symbol: sym})
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	fmt.Fprintln(c.out, sparkline(history), money(history[len(history)-1]))
	return nil
}

func (c *Console) addAlert(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "usage: alert <SYMBOL> <PRICE> [persist]")
		return nil
	}
	target, err := decimal.NewFromString(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "invalid price %q\n", args[1])
		return nil
	}
	persistent := len(args) > 2 && strings.EqualFold(args[2], "persist")

	var (
		alert domain.PriceAlert
		opErr error
	)
	sym := domain.NormalizeSymbol(args[0])
	if err := c.seq.Do(ctx, func() {
		for _, s := range c.svc.AllStocks() {
			if s.Symbol() == sym {
				alert, opErr = c.alerts.Add(s, target, persistent)
				return
			}
		}
		opErr = &domain.NotFoundError{Symbol: sym}
	}); err != nil {
		return err
	}
	if opErr != nil {
		fmt.Fprintf(c.out, "rejected: %v\n", opErr)
		return nil
	}
	fmt.Fprintf(c.out, "alert #%d: %s %s %s\n", alert.ID, alert.Symbol, alert.Direction, money(alert.TargetPrice))
	return nil
}

func (c *Console) listAlerts(ctx context.Context) error {
	var alerts []domain.PriceAlert
	if err := c.seq.Do(ctx, func() { alerts = c.alerts.List() }); err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(c.out, "no alerts")
		return nil
	}
	for _, a := range alerts {
		state := "armed"
		if !a.IsActive() {
			state = "fired"
		}
		kind := "once"
		if a.IsPersistent {
			kind = "persist"
		}
		fmt.Fprintf(c.out, "#%d %s %s %s (%s, %s)\n", a.ID, a.Symbol, a.Direction, money(a.TargetPrice), kind, state)
	}
	return nil
}

func (c *Console) removeAlert(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: unalert <ID>")
		return nil
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "invalid id %q\n", args[0])
		return nil
	}
	var removed bool
	if err := c.seq.Do(ctx, func() { removed = c.alerts.Remove(id) }); err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(c.out, "no alert #%d\n", id)
		return nil
	}
	fmt.Fprintf(c.out, "alert #%d removed\n", id)
	return nil
}

func (c *Console) events(ctx context.Context, args []string) error {
	n := 10
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}
	var events []Event
	if err := c.seq.Do(ctx, func() { events = c.watcher.Events(n) }); err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(c.out, "no events")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(c.out, "[%s] %s\n", e.At.Format("15:04:05"), e.Message)
	}
	return nil
}

func (c *Console) doSave(ctx context.Context) error {
	if c.save == nil {
		fmt.Fprintln(c.out, "saving is not configured")
		return nil
	}
	if err := c.save(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "session saved")
	return nil
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline renders prices scaled between their min and max.
func sparkline(prices []decimal.Decimal) string {
	if len(prices) == 0 {
		return ""
	}
	lo, hi := decimal.Min(prices[0], prices[1:]...), decimal.Max(prices[0], prices[1:]...)
	span := hi.Sub(lo)
	top := decimal.NewFromInt(int64(len(sparkRunes) - 1))

	var b strings.Builder
	for _, p := range prices {
		idx := 0
		if span.IsPositive() {
			idx = int(p.Sub(lo).Div(span).Mul(top).Round(0).IntPart())
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// money renders d as dollars and cents, e.g. $10,000.00.
func money(d decimal.Decimal) string {
	return gomoney.New(d.Shift(2).Round(0).IntPart(), gomoney.USD).Display()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + money(d)
	}
	return money(d)
}
