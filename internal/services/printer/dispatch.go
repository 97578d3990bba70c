package printer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
)

// DefaultMaxCopies is reported when the print subsystem does not say
const DefaultMaxCopies = 999

// Dispatcher talks to the OS print subsystem. A successful Print means the
// document was accepted for printing, not that paper came out.
type Dispatcher interface {
	ListInstalled(ctx context.Context) ([]string, error)
	GetDefault(ctx context.Context) (string, error)
	Test(ctx context.Context, name string) (TestResult, error)
	Print(ctx context.Context, filePath, printerName string, opts PrintOptions) (PrintResult, error)
}

// PrintOptions are forwarded from the active profile
type PrintOptions struct {
	PaperSize   models.PaperSize   `json:"paperSize,omitempty"`
	Orientation models.Orientation `json:"orientation,omitempty"`
	Copies      int                `json:"copies,omitempty"`
}

// OptionsFromProfile extracts print options from p
func OptionsFromProfile(p models.PrinterProfile) PrintOptions {
	return PrintOptions{PaperSize: p.PaperSize, Orientation: p.Orientation, Copies: p.Copies}
}

// TestResult describes a printer without printing anything
type TestResult struct {
	Success       bool   `json:"success"`
	PrinterName   string `json:"printerName"`
	SupportsColor bool   `json:"supportsColor"`
	IsDefault     bool   `json:"isDefault"`
	MaxCopies     int    `json:"maxCopies"`
	Message       string `json:"message,omitempty"`
}

// PrintResult is the spooler's answer to a submitted document
type PrintResult struct {
	Success     bool   `json:"success"`
	PrinterName string `json:"printerName"`
	JobID       string `json:"jobId,omitempty"`
	Message     string `json:"message"`
}

// CommandRunner runs an external program and returns its combined output
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// OSDispatcher drives the platform's print commands
type OSDispatcher struct {
	Runner  CommandRunner
	Timeout time.Duration
	log     *zap.Logger
}

// NewOSDispatcher creates a dispatcher running real commands
func NewOSDispatcher(timeout time.Duration, log *zap.Logger) *OSDispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OSDispatcher{
		Runner:  execRunner{},
		Timeout: timeout,
		log:     logger.OrNop(log).Named("printer"),
	}
}

func (d *OSDispatcher) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	out, err := d.Runner.Run(ctx, name, args...)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return out, context.DeadlineExceeded
	}
	return out, err
}

// Test resolves name against the installed printers and reports its
// capabilities. An unknown name is not an error, just Success=false.
func (d *OSDispatcher) Test(ctx context.Context, name string) (TestResult, error) {
	installed, err := d.ListInstalled(ctx)
	if err != nil {
		return TestResult{}, err
	}
	if !contains(installed, name) {
		return TestResult{PrinterName: name, Message: "printer not found"}, nil
	}

	def, err := d.GetDefault(ctx)
	if err != nil {
		d.log.Debug("default printer lookup failed", zap.Error(err))
	}
	res, err := d.capabilities(ctx, name)
	if err != nil {
		return TestResult{PrinterName: name, Message: err.Error()}, nil
	}
	res.Success = true
	res.PrinterName = name
	res.IsDefault = def == name
	return res, nil
}

func (d *OSDispatcher) commandError(name string, out []byte, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, name+" timed out", err)
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		msg = err.Error()
	}
	return apperr.Wrap(apperr.KindIO, fmt.Sprintf("%s failed: %s", name, msg), err)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
