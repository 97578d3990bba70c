package pipeline

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
)

// SweepResult counts what one auto-print sweep did
type SweepResult struct {
	Trips      int `json:"trips"`
	Downloaded int `json:"downloaded"`
	Printed    int `json:"printed"`
	Failed     int `json:"failed"`
}

// AutoPrinter periodically works through armed trips: Pending orders are
// downloaded when the profile has autoDownload and printed when it has
// autoPrint. Overlapping runs are skipped.
type AutoPrinter struct {
	p           *Pipeline
	cron        *cron.Cron
	schedule    string
	concurrency int
	log         *zap.Logger

	// ctx scopes scheduled sweeps; Stop cancels it
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAutoPrinter registers the sweep on schedule (cron spec or "@every 30s")
func NewAutoPrinter(p *Pipeline, schedule string, concurrency int, log *zap.Logger) (*AutoPrinter, error) {
	log = logger.OrNop(log).Named("autoprint")
	if concurrency <= 0 {
		concurrency = 1
	}
	cronLog := logger.CronLogger{L: log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	a := &AutoPrinter{
		p:           p,
		schedule:    schedule,
		concurrency: concurrency,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	if _, err := a.cron.AddFunc(schedule, func() {
		if _, err := a.Sweep(a.ctx); err != nil {
			a.log.Warn("auto-print sweep failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.KindValidation, "invalid auto-print schedule "+schedule, err)
	}
	return a, nil
}

// Start runs the scheduler in its own goroutine
func (a *AutoPrinter) Start() {
	a.cron.Start()
	a.log.Info("auto-print scheduler started", zap.String("schedule", a.schedule))
}

// Stop stops scheduling and cancels a running sweep; the returned context is
// done when that sweep has returned
func (a *AutoPrinter) Stop() context.Context {
	a.cancel()
	return a.cron.Stop()
}

// Sweep runs one pass over all armed trips
func (a *AutoPrinter) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	prof, err := a.p.session.Profile(ctx)
	if err != nil {
		return res, err
	}
	if !prof.AutoDownload && !prof.AutoPrint {
		return res, nil
	}

	// bring Completed/Pending in line with the PDF tree first
	if _, err := a.p.jobs.Reconcile(); err != nil {
		return res, err
	}
	trips, err := a.p.trips.Enabled()
	if err != nil {
		return res, err
	}
	res.Trips = len(trips)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(a.concurrency)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	var loopErr error
sweep:
	for _, trip := range trips {
		for _, order := range trip.OrderNumbers() {
			if err := ctx.Err(); err != nil {
				loopErr = err
				break sweep
			}
			key := models.JobKey{TripID: trip.TripID, TripDate: trip.TripDate, OrderNumber: order}
			job, err := a.p.jobs.Get(key)
			if err != nil && !apperr.IsNotFound(err) {
				loopErr = err
				break sweep
			}
			if err == nil && job.Status != models.JobStatusPending {
				continue
			}
			if !prof.AutoDownload {
				continue
			}

			g.Go(func() error {
				if _, err := a.p.DownloadOrder(ctx, key, nil); err != nil {
					count(&res.Failed)
					return nil
				}
				count(&res.Downloaded)
				if !prof.AutoPrint {
					return nil
				}
				if _, err := a.p.PrintOrder(ctx, key, prof.PrinterName); err != nil {
					a.log.Warn("auto-print failed", zap.String("job", key.String()), zap.Error(err))
					count(&res.Failed)
					return nil
				}
				count(&res.Printed)
				return nil
			})
		}
	}
	_ = g.Wait()
	if loopErr != nil {
		return res, loopErr
	}

	if res.Downloaded+res.Failed > 0 {
		a.log.Info("auto-print sweep done",
			zap.Int("trips", res.Trips),
			zap.Int("downloaded", res.Downloaded),
			zap.Int("printed", res.Printed),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}
