package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/buildinfo"
	"github.com/xelth-com/eckprint/internal/models"
	"github.com/xelth-com/eckprint/internal/pipeline"
	"github.com/xelth-com/eckprint/internal/services/printer"
	"github.com/xelth-com/eckprint/internal/services/report"
	"github.com/xelth-com/eckprint/internal/session"
)

// ProfileSession is the part of the session the profile actions use
type ProfileSession interface {
	Profile(ctx context.Context) (models.PrinterProfile, error)
	Refresh(ctx context.Context) (models.PrinterProfile, error)
	SaveLocal(ctx context.Context, p models.PrinterProfile) (models.PrinterProfile, error)
	Report() session.ReportSettings
	LoadedAt() time.Time
}

// Services are the collaborators behind the registered actions
type Services struct {
	Pipeline *pipeline.Pipeline
	Printers printer.Dispatcher
	Session  ProfileSession
	Fetcher  report.Fetcher
	// TempDir holds rendered test pages while they print
	TempDir string
}

type tripRequest struct {
	TripID   string `json:"tripId" validate:"required,segment"`
	TripDate string `json:"tripDate" validate:"required,datetime=2006-01-02"`
}

type enableRequest struct {
	TripID   string    `json:"tripId" validate:"required,segment"`
	TripDate string    `json:"tripDate" validate:"required,datetime=2006-01-02"`
	Orders   orderList `json:"orders" validate:"dive"`
}

type orderRequest struct {
	TripID      string `json:"tripId" validate:"required,segment"`
	TripDate    string `json:"tripDate" validate:"required,datetime=2006-01-02"`
	OrderNumber string `json:"orderNumber" validate:"required,segment"`
	PrinterName string `json:"printerName"`
}

func (r orderRequest) key() models.JobKey {
	return models.JobKey{TripID: r.TripID, TripDate: r.TripDate, OrderNumber: r.OrderNumber}
}

type listRequest struct {
	TripID   string `json:"tripId" validate:"omitempty,segment"`
	TripDate string `json:"tripDate" validate:"omitempty,datetime=2006-01-02"`
	From     string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

type printerRequest struct {
	PrinterName string `json:"printerName" validate:"required"`
}

type testPageRequest struct {
	PrinterName string `json:"printerName"`
}

type saveProfileRequest struct {
	Profile models.PrinterProfile `json:"profile"`
}

type reportDataRequest struct {
	ReportPath     string `json:"reportPath"`
	ParameterName  string `json:"parameterName"`
	ParameterValue string `json:"parameterValue" validate:"required"`
}

type empty struct{}

// orderList accepts orders either as plain order numbers or as objects
type orderList []models.OrderDescriptor

func (l *orderList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(orderList, 0, len(raw))
	for i, item := range raw {
		var number string
		if err := json.Unmarshal(item, &number); err == nil {
			out = append(out, models.OrderDescriptor{OrderNumber: number, Sequence: i + 1})
			continue
		}
		var d models.OrderDescriptor
		if err := json.Unmarshal(item, &d); err != nil {
			return err
		}
		out = append(out, d)
	}
	*l = out
	return nil
}

// RegisterAll binds every agent action to s
func RegisterAll(b *Bridge, s Services) {
	if s.TempDir == "" {
		s.TempDir = filepath.Join(os.TempDir(), "eckprint")
	}

	// print pipeline
	b.Register("enableAutoPrint", Typed(func(ctx context.Context, in enableRequest, _ ProgressFunc) (interface{}, error) {
		return s.Pipeline.EnableAutoPrint(ctx, in.TripID, in.TripDate, in.Orders)
	}))
	b.Register("disableAutoPrint", Typed(func(ctx context.Context, in tripRequest, _ ProgressFunc) (interface{}, error) {
		return s.Pipeline.DisableAutoPrint(ctx, in.TripID, in.TripDate)
	}))
	b.Register("getAutoPrintConfig", Typed(func(ctx context.Context, in tripRequest, _ ProgressFunc) (interface{}, error) {
		return s.Pipeline.GetAutoPrintConfig(ctx, in.TripID, in.TripDate)
	}))
	b.Register("downloadOrder", Typed(func(ctx context.Context, in orderRequest, progress ProgressFunc) (interface{}, error) {
		return s.Pipeline.DownloadOrder(ctx, in.key(), pipeline.ProgressFunc(progress))
	}))
	b.Register("printOrder", Typed(func(ctx context.Context, in orderRequest, _ ProgressFunc) (interface{}, error) {
		return s.Pipeline.PrintOrder(ctx, in.key(), in.PrinterName)
	}))
	b.Register("downloadAndPrintOrder", Typed(func(ctx context.Context, in orderRequest, progress ProgressFunc) (interface{}, error) {
		return s.Pipeline.DownloadAndPrint(ctx, in.key(), in.PrinterName, pipeline.ProgressFunc(progress))
	}))
	b.Register("retryFailedJobs", Typed(func(ctx context.Context, in tripRequest, progress ProgressFunc) (interface{}, error) {
		n, err := s.Pipeline.RetryFailedJobs(ctx, in.TripID, in.TripDate, pipeline.ProgressFunc(progress))
		if err != nil {
			return nil, err
		}
		return map[string]int{"retriedCount": n}, nil
	}))
	b.Register("listAllJobs", Typed(func(ctx context.Context, in listRequest, _ ProgressFunc) (interface{}, error) {
		return s.Pipeline.ListAllJobs(ctx, models.JobFilter(in))
	}))

	// printers
	b.Register("getPrinters", Typed(func(ctx context.Context, _ empty, _ ProgressFunc) (interface{}, error) {
		names, err := s.Printers.ListInstalled(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"printers": names}, nil
	}))
	b.Register("getDefaultPrinter", Typed(func(ctx context.Context, _ empty, _ ProgressFunc) (interface{}, error) {
		name, err := s.Printers.GetDefault(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"printerName": name}, nil
	}))
	b.Register("testPrinter", Typed(func(ctx context.Context, in printerRequest, _ ProgressFunc) (interface{}, error) {
		return s.Printers.Test(ctx, in.PrinterName)
	}))
	b.Register("printTestPage", Typed(func(ctx context.Context, in testPageRequest, progress ProgressFunc) (interface{}, error) {
		info := printer.TestPageInfo{PrinterName: in.PrinterName, Version: buildinfo.Version}
		if p, err := s.Session.Profile(ctx); err == nil {
			info.Options = printer.OptionsFromProfile(p)
			if info.PrinterName == "" {
				info.PrinterName = p.PrinterName
			}
		}
		progress(pipeline.StepPrinting, "printing test page")
		return printer.PrintTestPage(ctx, s.Printers, s.TempDir, info)
	}))

	// profile and session
	b.Register("getPrinterProfile", Typed(func(ctx context.Context, _ empty, _ ProgressFunc) (interface{}, error) {
		p, err := s.Session.Profile(ctx)
		if err != nil {
			return nil, err
		}
		return p.Redacted(), nil
	}))
	b.Register("savePrinterProfile", Typed(func(ctx context.Context, in saveProfileRequest, _ ProgressFunc) (interface{}, error) {
		p, err := s.Session.SaveLocal(ctx, in.Profile)
		if err != nil {
			return nil, err
		}
		return p.Redacted(), nil
	}))
	b.Register("refreshSession", Typed(func(ctx context.Context, _ empty, _ ProgressFunc) (interface{}, error) {
		p, err := s.Session.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		return p.Redacted(), nil
	}))

	// data
	b.Register("fetchReportData", Typed(func(ctx context.Context, in reportDataRequest, progress ProgressFunc) (interface{}, error) {
		req, err := reportDataFor(ctx, s.Session, in)
		if err != nil {
			return nil, err
		}
		progress(pipeline.StepFetching, "requesting "+req.ReportPath)
		records, res := report.FetchRecords(ctx, s.Fetcher, req)
		if !res.Success {
			if res.Err != nil {
				return nil, res.Err
			}
			return nil, apperr.New(apperr.KindRemote, res.ErrorMessage)
		}
		return map[string]interface{}{"records": records, "count": len(records)}, nil
	}))

	// misc
	b.Register("status", Typed(func(ctx context.Context, _ empty, _ ProgressFunc) (interface{}, error) {
		st := map[string]interface{}{
			"build":   buildinfo.Current(),
			"actions": b.Actions(),
		}
		if p, err := s.Session.Profile(ctx); err == nil {
			st["profileSource"] = p.Source
			st["printerName"] = p.PrinterName
		}
		if at := s.Session.LoadedAt(); !at.IsZero() {
			st["sessionLoadedAt"] = at
		}
		if list, err := s.Pipeline.ListAllJobs(ctx, models.JobFilter{}); err == nil {
			st["jobs"] = list.Stats
		}
		return st, nil
	}))
	b.Register("ping", HandlerFunc(func(_ context.Context, _ Request, _ ProgressFunc) (interface{}, error) {
		return map[string]string{"pong": time.Now().UTC().Format(time.RFC3339)}, nil
	}))
}

func reportDataFor(ctx context.Context, s ProfileSession, in reportDataRequest) (models.ReportRequest, error) {
	p, err := s.Profile(ctx)
	if err != nil {
		return models.ReportRequest{}, err
	}
	if !p.HasCredentials() {
		return models.ReportRequest{}, apperr.New(apperr.KindValidation, "printer profile has no report service credentials")
	}
	settings := s.Report()
	req := models.ReportRequest{
		ReportPath:     in.ReportPath,
		ParameterName:  in.ParameterName,
		ParameterValue: in.ParameterValue,
		Instance:       p.RemoteInstance,
		Username:       p.RemoteUsername,
		Secret:         p.RemoteSecret,
		OutputFormat:   models.OutputFormatXML,
	}
	if req.ReportPath == "" {
		req.ReportPath = settings.Path
	}
	if req.ParameterName == "" {
		req.ParameterName = settings.ParameterName
	}
	return req, nil
}
