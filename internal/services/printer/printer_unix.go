//go:build !windows

package printer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
)

// ListInstalled returns the CUPS destinations accepting jobs
func (d *OSDispatcher) ListInstalled(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "lpstat", "-a")
	if err != nil {
		// lpstat exits non-zero when no printer is configured
		if strings.Contains(string(out), "No destinations") {
			return []string{}, nil
		}
		return nil, d.commandError("lpstat", out, err)
	}
	return parsePrinterList(string(out)), nil
}

// GetDefault returns the system default destination, "" if none
func (d *OSDispatcher) GetDefault(ctx context.Context) (string, error) {
	out, err := d.run(ctx, "lpstat", "-d")
	if err != nil {
		if strings.Contains(string(out), "no system default") {
			return "", nil
		}
		return "", d.commandError("lpstat", out, err)
	}
	return parseDefault(string(out)), nil
}

func (d *OSDispatcher) capabilities(ctx context.Context, name string) (TestResult, error) {
	out, err := d.run(ctx, "lpoptions", "-p", name)
	if err != nil {
		return TestResult{}, d.commandError("lpoptions", out, err)
	}
	return capabilitiesFromOptions(parseOptions(string(out))), nil
}

// Print submits filePath with lp. An empty printerName uses the default.
func (d *OSDispatcher) Print(ctx context.Context, filePath, printerName string, opts PrintOptions) (PrintResult, error) {
	if filePath == "" {
		return PrintResult{}, apperr.New(apperr.KindValidation, "cannot print: file path is empty")
	}

	out, err := d.run(ctx, "lp", lpArgs(filePath, printerName, opts)...)
	if err != nil {
		d.log.Warn("lp rejected document",
			zap.String("printer", printerName),
			zap.String("file", filePath),
			zap.ByteString("output", out),
			zap.Error(err))
		return PrintResult{PrinterName: printerName, Message: strings.TrimSpace(string(out))}, d.commandError("lp", out, err)
	}

	jobID := parseRequestID(string(out))
	d.log.Info("document spooled", zap.String("printer", printerName), zap.String("job", jobID))
	return PrintResult{
		Success:     true,
		PrinterName: printerName,
		JobID:       jobID,
		Message:     "accepted by print spooler",
	}, nil
}
