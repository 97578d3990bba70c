package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/models"
	"github.com/xelth-com/eckprint/internal/pipeline"
	"github.com/xelth-com/eckprint/internal/services/printer"
	"github.com/xelth-com/eckprint/internal/session"
	"github.com/xelth-com/eckprint/internal/store"
)

type stubFetcher struct {
	mu      sync.Mutex
	failing map[string]bool
	content []byte
	reqs    []models.ReportRequest
}

func (f *stubFetcher) Fetch(ctx context.Context, req models.ReportRequest) models.ReportResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.failing[req.ParameterValue] {
		return models.ReportResult{ErrorMessage: "500 Internal Server Error", Err: apperr.New(apperr.KindRemote, "500 Internal Server Error")}
	}
	if f.content != nil {
		return models.ReportResult{Success: true, Content: f.content}
	}
	return models.ReportResult{Success: true, Content: []byte("%PDF-1.4 " + req.ParameterValue)}
}

type stubPrinter struct {
	mu      sync.Mutex
	printed []string
}

func (p *stubPrinter) ListInstalled(ctx context.Context) ([]string, error) {
	return []string{"Front_Desk", "Warehouse"}, nil
}
func (p *stubPrinter) GetDefault(ctx context.Context) (string, error) { return "Front_Desk", nil }
func (p *stubPrinter) Test(ctx context.Context, name string) (printer.TestResult, error) {
	return printer.TestResult{Success: true, PrinterName: name, MaxCopies: printer.DefaultMaxCopies}, nil
}
func (p *stubPrinter) Print(ctx context.Context, filePath, printerName string, opts printer.PrintOptions) (printer.PrintResult, error) {
	p.mu.Lock()
	p.printed = append(p.printed, filepath.Base(filePath))
	p.mu.Unlock()
	return printer.PrintResult{Success: true, PrinterName: printerName, JobID: "job-1"}, nil
}

type stubSession struct {
	mu      sync.Mutex
	profile models.PrinterProfile
	saved   *models.PrinterProfile
}

func (s *stubSession) Profile(ctx context.Context) (models.PrinterProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, nil
}

func (s *stubSession) Refresh(ctx context.Context) (models.PrinterProfile, error) {
	return s.Profile(ctx)
}

func (s *stubSession) SaveLocal(ctx context.Context, p models.PrinterProfile) (models.PrinterProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = &p
	s.profile = p
	return p, nil
}

func (s *stubSession) Report() session.ReportSettings {
	return session.ReportSettings{Path: "/Custom/PackingSlip.xdo", ParameterName: "P_ORDER_NUMBER"}
}

func (s *stubSession) LoadedAt() time.Time { return time.Time{} }

func (s *stubSession) OrderReport(ctx context.Context, orderNumber string) (models.ReportRequest, error) {
	p, _ := s.Profile(ctx)
	return models.ReportRequest{
		ReportPath:     s.Report().Path,
		ParameterName:  s.Report().ParameterName,
		ParameterValue: orderNumber,
		Instance:       p.RemoteInstance,
		Username:       p.RemoteUsername,
		Secret:         p.RemoteSecret,
		OutputFormat:   models.OutputFormatPDF,
	}, nil
}

type agent struct {
	b       *Bridge
	fetcher *stubFetcher
	printer *stubPrinter
	session *stubSession
	rec     *recorder
}

func newAgent(t *testing.T) *agent {
	dir := t.TempDir()
	log := zaptest.NewLogger(t)
	jobs, err := store.OpenJobStore(filepath.Join(dir, "jobs.json"), filepath.Join(dir, "pdf"), log)
	require.NoError(t, err)

	a := &agent{
		fetcher: &stubFetcher{failing: map[string]bool{}},
		printer: &stubPrinter{},
		session: &stubSession{profile: models.PrinterProfile{
			PrinterName:    "Warehouse",
			RemoteInstance: "acme",
			RemoteUsername: "svc",
			RemoteSecret:   "hunter2",
			AutoDownload:   true,
		}.WithDefaults()},
		rec: &recorder{},
	}
	p := pipeline.New(pipeline.Deps{
		Jobs:     jobs,
		Trips:    store.NewTripStore(filepath.Join(dir, "trips.json"), log),
		Fetcher:  a.fetcher,
		Printers: a.printer,
		Session:  a.session,
	}, 2, log)

	a.b = New(log)
	RegisterAll(a.b, Services{
		Pipeline: p,
		Printers: a.printer,
		Session:  a.session,
		Fetcher:  a.fetcher,
		TempDir:  filepath.Join(dir, "tmp"),
	})
	return a
}

// call sends one frame and returns the terminal frame decoded back from JSON
func (a *agent) call(t *testing.T, id string, frame map[string]interface{}) map[string]interface{} {
	t.Helper()
	frame["requestId"] = id
	raw, err := json.Marshal(frame)
	require.NoError(t, err)

	a.b.Receive(context.Background(), raw, a.rec)
	a.b.Wait()

	f := a.rec.terminal(t, id)
	out, err := json.Marshal(f)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	return m
}

func steps(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		if f.Step != "" {
			out = append(out, f.Step)
		}
	}
	return out
}

func TestRegisterAll_Actions(t *testing.T) {
	a := newAgent(t)
	assert.ElementsMatch(t, []string{
		"enableAutoPrint", "disableAutoPrint", "getAutoPrintConfig",
		"downloadOrder", "printOrder", "downloadAndPrintOrder", "retryFailedJobs", "listAllJobs",
		"getPrinters", "getDefaultPrinter", "testPrinter", "printTestPage",
		"getPrinterProfile", "savePrinterProfile", "refreshSession",
		"fetchReportData", "status", "ping",
	}, a.b.Actions())
}

func TestHandlers_TripLifecycle(t *testing.T) {
	a := newAgent(t)
	a.fetcher.failing["SO-2"] = true

	res := a.call(t, "1", map[string]interface{}{
		"action": "enableAutoPrint", "tripId": "T100", "tripDate": "2024-01-01",
		"orders": []interface{}{"SO-1", map[string]interface{}{"orderNumber": "SO-2"}},
	})
	require.Equal(t, true, res["success"], res)
	data := res["data"].(map[string]interface{})
	assert.Equal(t, true, data["enabled"])
	assert.Len(t, data["orders"], 2)

	res = a.call(t, "2", map[string]interface{}{"action": "downloadOrder", "tripId": "T100", "tripDate": "2024-01-01", "orderNumber": "SO-1"})
	require.Equal(t, true, res["success"], res)
	assert.Equal(t, "Completed", res["data"].(map[string]interface{})["status"])
	assert.Equal(t, []string{pipeline.StepFetching, pipeline.StepWriting}, steps(a.rec.forRequest("2")))

	res = a.call(t, "3", map[string]interface{}{"action": "downloadOrder", "tripId": "T100", "tripDate": "2024-01-01", "orderNumber": "SO-2"})
	assert.Equal(t, ActionError, res["action"])
	assert.Equal(t, false, res["success"])
	assert.Equal(t, string(apperr.KindRemote), res["kind"])

	a.fetcher.mu.Lock()
	a.fetcher.failing["SO-2"] = false
	a.fetcher.mu.Unlock()
	res = a.call(t, "4", map[string]interface{}{"action": "retryFailedJobs", "tripId": "T100", "tripDate": "2024-01-01"})
	require.Equal(t, true, res["success"], res)
	assert.Equal(t, float64(1), res["data"].(map[string]interface{})["retriedCount"])
	assert.Equal(t, []string{pipeline.StepRetrying}, steps(a.rec.forRequest("4")))

	res = a.call(t, "5", map[string]interface{}{"action": "listAllJobs", "tripId": "T100"})
	require.Equal(t, true, res["success"], res)
	stats := res["data"].(map[string]interface{})["stats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, float64(2), stats["completed"])

	res = a.call(t, "6", map[string]interface{}{"action": "disableAutoPrint", "tripId": "T100", "tripDate": "2024-01-01"})
	require.Equal(t, true, res["success"], res)
	assert.Equal(t, false, res["data"].(map[string]interface{})["enabled"])

	res = a.call(t, "7", map[string]interface{}{"action": "getAutoPrintConfig", "tripId": "T100", "tripDate": "2024-01-01"})
	require.Equal(t, true, res["success"], res)
	assert.Equal(t, false, res["data"].(map[string]interface{})["enabled"])
}

func TestHandlers_PrintOrder(t *testing.T) {
	a := newAgent(t)

	res := a.call(t, "1", map[string]interface{}{"action": "printOrder", "tripId": "T1", "tripDate": "2024-01-01", "orderNumber": "SO-9"})
	assert.Equal(t, ActionError, res["action"])
	assert.Equal(t, string(apperr.KindNotFound), res["kind"])
	assert.Empty(t, a.printer.printed)

	res = a.call(t, "2", map[string]interface{}{"action": "downloadAndPrintOrder", "tripId": "T1", "tripDate": "2024-01-01", "orderNumber": "SO-9"})
	require.Equal(t, true, res["success"], res)
	assert.Equal(t, "Warehouse", res["data"].(map[string]interface{})["printerName"])
	assert.Equal(t, []string{pipeline.StepFetching, pipeline.StepWriting, pipeline.StepPrinting}, steps(a.rec.forRequest("2")))

	res = a.call(t, "3", map[string]interface{}{"action": "printOrder", "tripId": "T1", "tripDate": "2024-01-01", "orderNumber": "SO-9", "printerName": "Front_Desk"})
	require.Equal(t, true, res["success"], res)
	assert.Equal(t, "Front_Desk", res["data"].(map[string]interface{})["printerName"])
	assert.Equal(t, []string{"SO-9.pdf", "SO-9.pdf"}, a.printer.printed)
}

func TestHandlers_Validation(t *testing.T) {
	a := newAgent(t)

	res := a.call(t, "1", map[string]interface{}{"action": "downloadOrder", "tripId": "T1", "tripDate": "2024-1-1", "orderNumber": "SO-1"})
	assert.Equal(t, ActionError, res["action"])
	assert.Equal(t, string(apperr.KindValidation), res["kind"])
	assert.Contains(t, res["message"], "tripDate")

	res = a.call(t, "2", map[string]interface{}{"action": "testPrinter"})
	assert.Equal(t, string(apperr.KindValidation), res["kind"])
	assert.Equal(t, "printerName is required", res["message"])
}

func TestHandlers_Printers(t *testing.T) {
	a := newAgent(t)

	res := a.call(t, "1", map[string]interface{}{"action": "getPrinters"})
	assert.Equal(t, []interface{}{"Front_Desk", "Warehouse"}, res["data"].(map[string]interface{})["printers"])

	res = a.call(t, "2", map[string]interface{}{"type": "getDefaultPrinter"})
	assert.Equal(t, "Front_Desk", res["data"].(map[string]interface{})["printerName"])

	res = a.call(t, "3", map[string]interface{}{"action": "testPrinter", "printerName": "Warehouse"})
	assert.Equal(t, true, res["data"].(map[string]interface{})["success"])

	res = a.call(t, "4", map[string]interface{}{"action": "printTestPage"})
	require.Equal(t, true, res["success"], res)
	require.Len(t, a.printer.printed, 1)
	assert.Contains(t, a.printer.printed[0], "testpage-")
}

func TestHandlers_ProfileNeverLeaksSecret(t *testing.T) {
	a := newAgent(t)

	for i, action := range []string{"getPrinterProfile", "refreshSession"} {
		res := a.call(t, string(rune('a'+i)), map[string]interface{}{"action": action})
		require.Equal(t, true, res["success"], res)
		data := res["data"].(map[string]interface{})
		assert.Equal(t, models.MaskSecret("hunter2"), data["remoteSecret"])
		assert.Equal(t, "Warehouse", data["printerName"])
	}

	res := a.call(t, "s", map[string]interface{}{"action": "savePrinterProfile", "profile": map[string]interface{}{
		"printerName": "Front_Desk", "remoteInstance": "acme", "remoteUsername": "svc", "remoteSecret": "new-secret",
	}})
	require.Equal(t, true, res["success"], res)
	assert.NotContains(t, res["data"].(map[string]interface{})["remoteSecret"], "new-secret")
	require.NotNil(t, a.session.saved)
	assert.Equal(t, "new-secret", a.session.saved.RemoteSecret)
}

func TestHandlers_FetchReportData(t *testing.T) {
	a := newAgent(t)
	a.fetcher.content = []byte(`<DATA_DS><G_1><ORDER_NUMBER>SO-1</ORDER_NUMBER><QTY>2</QTY></G_1><G_1><ORDER_NUMBER>SO-2</ORDER_NUMBER><QTY>5</QTY></G_1></DATA_DS>`)

	res := a.call(t, "1", map[string]interface{}{"action": "fetchReportData", "parameterValue": "T100"})
	require.Equal(t, true, res["success"], res)
	data := res["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
	records := data["records"].([]interface{})
	assert.Equal(t, "SO-2", records[1].(map[string]interface{})["order_number"])

	require.Len(t, a.fetcher.reqs, 1)
	req := a.fetcher.reqs[0]
	assert.Equal(t, models.OutputFormatXML, req.OutputFormat)
	assert.Equal(t, "/Custom/PackingSlip.xdo", req.ReportPath)
	assert.Equal(t, "P_ORDER_NUMBER", req.ParameterName)
}

func TestHandlers_StatusAndPing(t *testing.T) {
	a := newAgent(t)

	res := a.call(t, "1", map[string]interface{}{"action": "ping"})
	assert.Equal(t, true, res["success"])
	assert.NotEmpty(t, res["data"].(map[string]interface{})["pong"])

	res = a.call(t, "2", map[string]interface{}{"action": "status"})
	data := res["data"].(map[string]interface{})
	assert.Equal(t, "Warehouse", data["printerName"])
	assert.NotNil(t, data["build"])
	assert.NotNil(t, data["jobs"])
}

func TestHandlers_TestPageTempFileRemoved(t *testing.T) {
	a := newAgent(t)
	dir := t.TempDir()
	a.b = New(zaptest.NewLogger(t))
	RegisterAll(a.b, Services{Printers: a.printer, Session: a.session, TempDir: dir})

	res := a.call(t, "1", map[string]interface{}{"action": "printTestPage", "printerName": "Front_Desk"})
	require.Equal(t, true, res["success"], res)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
