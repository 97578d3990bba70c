package printer

import (
	"strconv"
	"strings"

	"github.com/xelth-com/eckprint/internal/models"
)

// cups printer-type bit for color devices
const cupsPrinterColor = 0x0008

// parsePrinterList takes the first field of every non-empty line
// ("HP_LaserJet accepting requests since ...").
func parsePrinterList(out string) []string {
	printers := []string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		printers = append(printers, fields[0])
	}
	return printers
}

// parseNameLines returns trimmed non-empty lines (PowerShell -ExpandProperty)
func parseNameLines(out string) []string {
	names := []string{}
	for _, l := range strings.Split(out, "\n") {
		if s := strings.TrimSpace(l); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// parseDefault reads `lpstat -d`: "system default destination: HP_LaserJet"
func parseDefault(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if i := strings.Index(line, "default destination:"); i >= 0 {
			return strings.TrimSpace(line[i+len("default destination:"):])
		}
	}
	return ""
}

// parseRequestID reads `lp`: "request id is HP_LaserJet-123 (1 file(s))"
func parseRequestID(out string) string {
	const marker = "request id is"
	i := strings.Index(out, marker)
	if i < 0 {
		return ""
	}
	fields := strings.Fields(out[i+len(marker):])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// parseOptions splits `lpoptions -p` output into key=value pairs. Values may
// be single-quoted and contain spaces.
func parseOptions(out string) map[string]string {
	opts := make(map[string]string)
	s := strings.TrimSpace(out)
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		sp := strings.IndexByte(s, ' ')
		if eq < 0 || (sp >= 0 && sp < eq) {
			// flag without value
			if sp < 0 {
				opts[s] = ""
				break
			}
			opts[s[:sp]] = ""
			s = strings.TrimLeft(s[sp:], " ")
			continue
		}
		key := s[:eq]
		s = s[eq+1:]
		var val string
		if strings.HasPrefix(s, "'") {
			end := strings.IndexByte(s[1:], '\'')
			if end < 0 {
				val, s = s[1:], ""
			} else {
				val, s = s[1:end+1], s[end+2:]
			}
		} else if sp := strings.IndexByte(s, ' '); sp >= 0 {
			val, s = s[:sp], s[sp:]
		} else {
			val, s = s, ""
		}
		opts[key] = val
		s = strings.TrimLeft(s, " ")
	}
	return opts
}

// capabilitiesFromOptions derives color and copy limits from lpoptions
func capabilitiesFromOptions(opts map[string]string) TestResult {
	res := TestResult{MaxCopies: DefaultMaxCopies}

	if v, ok := opts["print-color-mode-supported"]; ok {
		res.SupportsColor = strings.Contains(v, "color")
	} else if v, ok := opts["printer-type"]; ok {
		if t, err := strconv.ParseInt(v, 0, 64); err == nil {
			res.SupportsColor = t&cupsPrinterColor != 0
		}
	}

	if v, ok := opts["copies-supported"]; ok {
		if i := strings.IndexByte(v, '-'); i >= 0 {
			v = v[i+1:]
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			res.MaxCopies = n
		}
	}
	return res
}

// lpArgs builds the `lp` command line
func lpArgs(filePath, printerName string, opts PrintOptions) []string {
	var args []string
	if printerName != "" {
		args = append(args, "-d", printerName)
	}
	if opts.PaperSize != "" {
		args = append(args, "-o", "media="+string(opts.PaperSize))
	}
	switch opts.Orientation {
	case models.OrientationPortrait:
		args = append(args, "-o", "orientation-requested=3")
	case models.OrientationLandscape:
		args = append(args, "-o", "orientation-requested=4")
	}
	if opts.Copies > 1 {
		args = append(args, "-n", strconv.Itoa(opts.Copies))
	}
	return append(args, "--", filePath)
}

// sumatraSettings builds SumatraPDF's -print-settings value
func sumatraSettings(opts PrintOptions) string {
	var parts []string
	if opts.PaperSize != "" {
		parts = append(parts, "paper="+strings.ToLower(string(opts.PaperSize)))
	}
	if opts.Orientation != "" {
		parts = append(parts, string(opts.Orientation))
	}
	if opts.Copies > 1 {
		parts = append(parts, strconv.Itoa(opts.Copies)+"x")
	}
	return strings.Join(parts, ",")
}

// psQuote quotes s as a PowerShell single-quoted string
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
