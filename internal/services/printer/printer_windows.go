//go:build windows

package printer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
)

// ListInstalled returns the installed printer names
func (d *OSDispatcher) ListInstalled(ctx context.Context) ([]string, error) {
	out, err := d.powershell(ctx, "Get-Printer | Select-Object -ExpandProperty Name")
	if err != nil {
		return nil, d.commandError("Get-Printer", out, err)
	}
	return parseNameLines(string(out)), nil
}

// GetDefault returns the default printer, "" if none
func (d *OSDispatcher) GetDefault(ctx context.Context) (string, error) {
	out, err := d.powershell(ctx, `Get-CimInstance -ClassName Win32_Printer -Filter "Default=TRUE" | Select-Object -ExpandProperty Name`)
	if err != nil {
		return "", d.commandError("Win32_Printer", out, err)
	}
	names := parseNameLines(string(out))
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

func (d *OSDispatcher) capabilities(ctx context.Context, name string) (TestResult, error) {
	out, err := d.powershell(ctx, "Get-PrintConfiguration -PrinterName "+psQuote(name)+" | Select-Object -ExpandProperty Color")
	if err != nil {
		return TestResult{}, d.commandError("Get-PrintConfiguration", out, err)
	}
	return TestResult{
		SupportsColor: strings.EqualFold(strings.TrimSpace(string(out)), "True"),
		MaxCopies:     DefaultMaxCopies,
	}, nil
}

// Print prefers SumatraPDF (silent) and falls back to the shell PrintTo verb
func (d *OSDispatcher) Print(ctx context.Context, filePath, printerName string, opts PrintOptions) (PrintResult, error) {
	if filePath == "" {
		return PrintResult{}, apperr.New(apperr.KindValidation, "cannot print: file path is empty")
	}

	if sumatra := findSumatra(); sumatra != "" {
		args := []string{}
		if printerName != "" {
			args = append(args, "-print-to", printerName)
		} else {
			args = append(args, "-print-to-default")
		}
		if s := sumatraSettings(opts); s != "" {
			args = append(args, "-print-settings", s)
		}
		args = append(args, "-silent", filePath)

		out, err := d.run(ctx, sumatra, args...)
		if err == nil {
			return PrintResult{Success: true, PrinterName: printerName, Message: "accepted by print spooler"}, nil
		}
		d.log.Warn("SumatraPDF failed, trying PowerShell", zap.ByteString("output", out), zap.Error(err))
	}

	var script string
	if printerName != "" {
		script = fmt.Sprintf("Start-Process -FilePath %s -Verb PrintTo -ArgumentList %s -WindowStyle Hidden -Wait",
			psQuote(filePath), psQuote(`"`+printerName+`"`))
	} else {
		script = fmt.Sprintf("Start-Process -FilePath %s -Verb Print -WindowStyle Hidden -Wait", psQuote(filePath))
	}
	out, err := d.powershell(ctx, script)
	if err != nil {
		return PrintResult{PrinterName: printerName, Message: strings.TrimSpace(string(out))}, d.commandError("print", out, err)
	}
	return PrintResult{Success: true, PrinterName: printerName, Message: "accepted by print spooler"}, nil
}

func (d *OSDispatcher) powershell(ctx context.Context, script string) ([]byte, error) {
	return d.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

// findSumatra looks next to the executable, then on PATH
func findSumatra() string {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), "SumatraPDF.exe")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if p, err := exec.LookPath("SumatraPDF.exe"); err == nil {
		return p
	}
	return ""
}
