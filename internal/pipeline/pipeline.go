// Package pipeline turns armed trips into cached order PDFs and printed
// documents, keeping the job ledger in step with the PDF tree.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
	"github.com/xelth-com/eckprint/internal/services/printer"
	"github.com/xelth-com/eckprint/internal/services/report"
	"github.com/xelth-com/eckprint/internal/store"
)

// Progress steps reported while an operation runs
const (
	StepFetching = "fetching"
	StepWriting  = "writing"
	StepPrinting = "printing"
	StepRetrying = "retrying"
)

// ProgressFunc receives intermediate steps. It may be called concurrently.
type ProgressFunc func(step, message string)

func (f ProgressFunc) emit(step, message string) {
	if f != nil {
		f(step, message)
	}
}

// Session is what the pipeline needs from the active session
type Session interface {
	Profile(ctx context.Context) (models.PrinterProfile, error)
	OrderReport(ctx context.Context, orderNumber string) (models.ReportRequest, error)
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Jobs     *store.JobStore
	Trips    *store.TripStore
	Fetcher  report.Fetcher
	Printers printer.Dispatcher
	Session  Session
}

// Pipeline orchestrates auto-print arming, downloads, prints and retries
type Pipeline struct {
	jobs     *store.JobStore
	trips    *store.TripStore
	fetcher  report.Fetcher
	printers printer.Dispatcher
	session  Session

	locks            *keyLock
	retryConcurrency int
	now              func() time.Time
	log              *zap.Logger
}

// New creates a pipeline. retryConcurrency bounds RetryFailedJobs fan-out.
func New(deps Deps, retryConcurrency int, log *zap.Logger) *Pipeline {
	if retryConcurrency <= 0 {
		retryConcurrency = 4
	}
	locks := newKeyLock()
	if deps.Jobs != nil {
		deps.Jobs.SetInFlight(func(k models.JobKey) bool { return locks.held(k.String()) })
	}
	return &Pipeline{
		jobs:             deps.Jobs,
		trips:            deps.Trips,
		fetcher:          deps.Fetcher,
		printers:         deps.Printers,
		session:          deps.Session,
		locks:            locks,
		retryConcurrency: retryConcurrency,
		now:              time.Now,
		log:              logger.OrNop(log).Named("pipeline"),
	}
}

// OnJobChange registers fn for every persisted job change
func (p *Pipeline) OnJobChange(fn func(models.PrintJob)) {
	p.jobs.OnChange(fn)
}

// EnableAutoPrint arms a trip and registers a Pending job for every order
// not seen before. Calling it again with the same orders stores the same
// config. Nothing is downloaded here.
func (p *Pipeline) EnableAutoPrint(ctx context.Context, tripID, tripDate string, orders []models.OrderDescriptor) (models.TripAutoPrintConfig, error) {
	keys := make([]models.JobKey, 0, len(orders))
	for _, o := range orders {
		k := models.JobKey{TripID: tripID, TripDate: tripDate, OrderNumber: o.OrderNumber}
		if err := store.ValidateKey(k); err != nil {
			return models.TripAutoPrintConfig{}, err
		}
		keys = append(keys, k)
	}

	cfg, err := p.trips.Put(models.TripAutoPrintConfig{
		TripID:   tripID,
		TripDate: tripDate,
		Enabled:  true,
		Orders:   orders,
	})
	if err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	if _, err := p.jobs.Register(keys); err != nil {
		return models.TripAutoPrintConfig{}, err
	}

	p.log.Info("auto-print enabled", zap.String("trip", cfg.Key()), zap.Int("orders", len(orders)))
	return cfg, nil
}

// DisableAutoPrint disarms a trip. PDFs and job history stay.
func (p *Pipeline) DisableAutoPrint(ctx context.Context, tripID, tripDate string) (models.TripAutoPrintConfig, error) {
	cfg, err := p.trips.Disable(tripID, tripDate)
	if err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	p.log.Info("auto-print disabled", zap.String("trip", cfg.Key()))
	return cfg, nil
}

// GetAutoPrintConfig returns the stored config of a trip
func (p *Pipeline) GetAutoPrintConfig(ctx context.Context, tripID, tripDate string) (models.TripAutoPrintConfig, error) {
	if err := store.ValidateTrip(tripID, tripDate); err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	return p.trips.Get(tripID, tripDate)
}

// DownloadOrder fetches the order's PDF and stores it at its deterministic
// path. The outcome is recorded on the job either way; there is no retry.
// Downloads of the same key are serialized.
func (p *Pipeline) DownloadOrder(ctx context.Context, key models.JobKey, progress ProgressFunc) (models.PrintJob, error) {
	if err := store.ValidateKey(key); err != nil {
		return models.PrintJob{}, err
	}

	unlock := p.locks.Lock(key.String())
	defer unlock()

	log := p.log.With(zap.String("job", key.String()))

	if _, err := p.jobs.Update(key, func(j *models.PrintJob) error {
		j.StartDownload(p.now())
		return nil
	}); err != nil {
		return models.PrintJob{}, err
	}

	// every exit past this point leaves the job Completed or Failed
	settled := false
	defer func() {
		if settled {
			return
		}
		r := recover()
		msg := "download interrupted"
		if r != nil {
			msg = fmt.Sprintf("download aborted: %v", r)
		}
		if _, err := p.jobs.Update(key, func(j *models.PrintJob) error {
			if j.Status == models.JobStatusDownloading {
				j.Fail(msg, p.now())
			}
			return nil
		}); err != nil {
			log.Error("failed to settle interrupted download", zap.Error(err))
		}
		if r != nil {
			panic(r)
		}
	}()

	fail := func(cause error) (models.PrintJob, error) {
		msg := apperr.Message(cause)
		job, err := p.jobs.Update(key, func(j *models.PrintJob) error {
			j.Fail(msg, p.now())
			return nil
		})
		if err != nil {
			log.Error("failed to record download failure", zap.Error(err))
		} else {
			settled = true
		}
		log.Warn("download failed", zap.String("kind", string(apperr.KindOf(cause))), zap.String("error", msg))
		return job, cause
	}

	req, err := p.session.OrderReport(ctx, key.OrderNumber)
	if err != nil {
		return fail(err)
	}

	progress.emit(StepFetching, "Fetching "+key.OrderNumber)
	res := p.fetcher.Fetch(ctx, req)
	if !res.Success {
		cause := res.Err
		if cause == nil {
			cause = apperr.New(apperr.KindRemote, res.ErrorMessage)
		}
		return fail(cause)
	}

	progress.emit(StepWriting, "Saving "+key.OrderNumber)
	path, err := p.jobs.WritePDF(key, res.Content)
	if err != nil {
		return fail(err)
	}

	job, err := p.jobs.Update(key, func(j *models.PrintJob) error {
		j.Complete(path, p.now())
		return nil
	})
	if err != nil {
		return models.PrintJob{}, err
	}
	settled = true
	log.Info("order downloaded", zap.String("path", path), zap.Int("bytes", len(res.Content)))
	return job, nil
}

// PrintOrder sends an already downloaded PDF to a printer. It never
// downloads; a missing PDF is NOT_FOUND. An empty printerName uses the
// profile printer, then the OS default.
func (p *Pipeline) PrintOrder(ctx context.Context, key models.JobKey, printerName string) (printer.PrintResult, error) {
	path, err := p.jobs.PDFPath(key)
	if err != nil {
		return printer.PrintResult{}, err
	}
	if !p.jobs.HasPDF(key) {
		return printer.PrintResult{}, apperr.New(apperr.KindNotFound, "no downloaded PDF for order "+key.OrderNumber)
	}

	var opts printer.PrintOptions
	prof, err := p.session.Profile(ctx)
	if err != nil {
		p.log.Debug("printing without profile options", zap.Error(err))
	} else {
		opts = printer.OptionsFromProfile(prof)
		if printerName == "" {
			printerName = prof.PrinterName
		}
	}

	res, err := p.printers.Print(ctx, path, printerName, opts)
	if err != nil {
		return res, err
	}

	if _, err := p.jobs.Update(key, func(j *models.PrintJob) error {
		if j.Status != models.JobStatusCompleted {
			j.Complete(path, p.now())
		}
		j.MarkPrinted(res.PrinterName, p.now())
		return nil
	}); err != nil {
		p.log.Warn("failed to record print", zap.String("job", key.String()), zap.Error(err))
	}
	p.log.Info("order printed", zap.String("job", key.String()), zap.String("printer", res.PrinterName))
	return res, nil
}

// DownloadAndPrint downloads the order and prints it when the download worked
func (p *Pipeline) DownloadAndPrint(ctx context.Context, key models.JobKey, printerName string, progress ProgressFunc) (printer.PrintResult, error) {
	if _, err := p.DownloadOrder(ctx, key, progress); err != nil {
		return printer.PrintResult{}, err
	}
	progress.emit(StepPrinting, "Printing "+key.OrderNumber)
	return p.PrintOrder(ctx, key, printerName)
}

// RetryFailedJobs re-downloads every Failed job of a trip and returns how
// many were attempted, however many succeed.
func (p *Pipeline) RetryFailedJobs(ctx context.Context, tripID, tripDate string, progress ProgressFunc) (int, error) {
	if err := store.ValidateTrip(tripID, tripDate); err != nil {
		return 0, err
	}
	jobs, err := p.jobs.Query(models.JobFilter{TripID: tripID, TripDate: tripDate})
	if err != nil {
		return 0, err
	}

	var failed []models.JobKey
	for _, j := range jobs {
		if j.Status == models.JobStatusFailed {
			failed = append(failed, j.Key())
		}
	}
	if len(failed) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(p.retryConcurrency)
	for _, key := range failed {
		g.Go(func() error {
			if _, err := p.jobs.Update(key, func(j *models.PrintJob) error {
				if j.Status != models.JobStatusFailed {
					return nil
				}
				j.Reset("", p.now())
				return nil
			}); err != nil {
				p.log.Warn("failed to reset job for retry", zap.String("job", key.String()), zap.Error(err))
			}
			progress.emit(StepRetrying, "Retrying "+key.OrderNumber)
			// individual failures are already on the job record
			_, _ = p.DownloadOrder(ctx, key, nil)
			return nil
		})
	}
	_ = g.Wait()

	p.log.Info("retried failed jobs", zap.String("trip", tripDate+"/"+tripID), zap.Int("attempted", len(failed)))
	return len(failed), nil
}

// ListAllJobs reconciles the ledger and returns the matching jobs with stats
func (p *Pipeline) ListAllJobs(ctx context.Context, filter models.JobFilter) (models.JobList, error) {
	return p.jobs.List(filter)
}
