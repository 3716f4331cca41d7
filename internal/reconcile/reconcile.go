package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/flash_settlement/internal/config"
	"github.com/congo-pay/flash_settlement/internal/ledger"
	"github.com/congo-pay/flash_settlement/internal/logging"
	"github.com/congo-pay/flash_settlement/internal/metrics"
	"github.com/congo-pay/flash_settlement/internal/notification"
	"github.com/congo-pay/flash_settlement/internal/settlement"
)

const runTimeout = 30 * time.Second

// Shortfall reports a reserve whose balance dropped below its provisioned liquidity.
type Shortfall struct {
	Account  string
	Asset    string
	Expected uint64
	Actual   uint64
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	Checked    int
	Shortfalls []Shortfall
	Stats      settlement.Stats
	RanAt      time.Time
}

// Job periodically checks that no reserve ever lost principal.
type Job struct {
	ledger   ledger.Ledger
	reserves []config.Reserve
	journal  settlement.Repository
	notifier notification.Notifier
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJob builds a reconciliation job over the provisioned reserves.
func NewJob(l ledger.Ledger, reserves []config.Reserve, journal settlement.Repository, notifier notification.Notifier, logger *slog.Logger) *Job {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Job{ledger: l, reserves: reserves, journal: journal, notifier: notifier, logger: logger}
}

// Start schedules RunOnce on spec, a robfig cron expression or descriptor such as "@every 1m".
func (j *Job) Start(spec string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return fmt.Errorf("reconcile job already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("reconcile run failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", spec, err)
	}
	c.Start()
	j.cron = c
	j.logger.Info("reconcile scheduled", slog.String("schedule", spec), slog.Int("reserves", len(j.reserves)))
	return nil
}

// Stop halts scheduling and waits for a running pass to finish or ctx to expire.
func (j *Job) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce checks every reserve balance, publishes gauges and reports shortfalls.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	report := Report{RanAt: time.Now().UTC()}
	for _, r := range j.reserves {
		balance, err := j.ledger.Balance(ctx, r.Code)
		if err != nil {
			return report, fmt.Errorf("balance of %s: %w", r.Code, err)
		}
		report.Checked++
		metrics.ReserveBalance.WithLabelValues(r.Code, r.Asset).Set(float64(balance))

		if balance < r.Liquidity {
			sf := Shortfall{Account: r.Code, Asset: r.Asset, Expected: r.Liquidity, Actual: balance}
			report.Shortfalls = append(report.Shortfalls, sf)
			j.reportShortfall(ctx, sf)
		}
	}
	if len(report.Shortfalls) > 0 {
		metrics.ReserveShortfalls.Inc()
	}

	if j.journal != nil {
		stats, err := j.journal.Stats(ctx)
		if err != nil {
			return report, fmt.Errorf("journal stats: %w", err)
		}
		report.Stats = stats
	}

	j.logger.Info("reconcile completed",
		slog.Int("reserves", report.Checked),
		slog.Int("shortfalls", len(report.Shortfalls)),
		slog.Int64("settlements", report.Stats.Total),
		slog.Uint64("total_profit", report.Stats.TotalProfit),
		slog.Float64("success_rate", report.Stats.SuccessRate),
	)
	return report, nil
}

func (j *Job) reportShortfall(ctx context.Context, sf Shortfall) {
	j.logger.Warn("reserve below provisioned liquidity",
		slog.String("account", sf.Account),
		slog.String("asset", sf.Asset),
		slog.Uint64("expected", sf.Expected),
		slog.Uint64("actual", sf.Actual),
	)
	if j.notifier == nil {
		return
	}
	_ = j.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindReserveShortfall,
		Destination: sf.Account,
		Body:        fmt.Sprintf("reserve %s holds %d %s, provisioned %d", sf.Account, sf.Actual, sf.Asset, sf.Expected),
	})
}
