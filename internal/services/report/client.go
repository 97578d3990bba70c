package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
)

const (
	DefaultEndpoint = "/xmlpserver/services/ExternalReportWSSService"
	DefaultTimeout  = 120 * time.Second
)

// Fetcher runs a report and returns its decoded artifact
type Fetcher interface {
	Fetch(ctx context.Context, req models.ReportRequest) models.ReportResult
}

// Client talks to the report service over HTTPS
type Client struct {
	Endpoint   string
	HttpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a new report service client
func NewClient(endpoint string, timeout time.Duration, log *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Endpoint:   endpoint,
		HttpClient: &http.Client{Timeout: timeout},
		log:        logger.OrNop(log).Named("report"),
	}
}

// URL returns the service URL for an instance
func (c *Client) URL(instance string) string {
	return strings.TrimRight(instance, "/") + c.Endpoint
}

// Fetch runs req. Failures never return a Go error; they come back as
// ReportResult{Success:false} with ErrorMessage and a classified Err.
func (c *Client) Fetch(ctx context.Context, req models.ReportRequest) models.ReportResult {
	if req.OutputFormat == "" {
		req.OutputFormat = models.OutputFormatPDF
	}
	if !req.OutputFormat.IsValid() {
		return failed(apperr.New(apperr.KindValidation, fmt.Sprintf("unsupported output format %q", req.OutputFormat)))
	}
	if req.Instance == "" || req.ReportPath == "" {
		return failed(apperr.New(apperr.KindValidation, "report instance and path are required"))
	}

	body, err := BuildEnvelope(req)
	if err != nil {
		return failed(apperr.Wrap(apperr.KindInternal, "failed to build request envelope", err))
	}

	c.log.Debug("running report", zap.Object("request", req))
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(req.Instance), bytes.NewReader(body))
	if err != nil {
		return failed(apperr.Wrap(apperr.KindValidation, "invalid report instance URL", err))
	}
	httpReq.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", "runReport")

	resp, err := c.HttpClient.Do(httpReq)
	if err != nil {
		if apperr.IsTimeoutErr(err) {
			return failed(apperr.Wrap(apperr.KindTimeout, "report service timed out", err))
		}
		return failed(apperr.Wrap(apperr.KindRemote, "report service unreachable", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		c.log.Warn("report service returned error status",
			zap.String("parameterValue", req.ParameterValue),
			zap.Int("status", resp.StatusCode))
		return models.ReportResult{
			ErrorMessage: resp.Status,
			Err:          apperr.New(apperr.KindRemote, resp.Status),
		}
	}

	content, err := parseEnvelope(resp.Body)
	if err != nil {
		if apperr.IsTimeoutErr(err) {
			return failed(apperr.Wrap(apperr.KindTimeout, "report service timed out", err))
		}
		return failed(apperr.Wrap(apperr.KindRemote, "malformed report response", err))
	}
	if !content.found {
		msg := "report response has no content"
		if content.fault != "" {
			msg = content.fault
		}
		return failed(apperr.New(apperr.KindRemote, msg))
	}

	decoded, err := base64.StdEncoding.DecodeString(stripSpace(content.payload))
	if err != nil {
		return failed(apperr.Wrap(apperr.KindRemote, "report content is not valid base64", err))
	}

	c.log.Info("report fetched",
		zap.String("parameterValue", req.ParameterValue),
		zap.String("format", string(req.OutputFormat)),
		zap.Int("bytes", len(decoded)),
		zap.Duration("took", time.Since(start)))

	return models.ReportResult{Success: true, Content: decoded}
}

func failed(err *apperr.Error) models.ReportResult {
	return models.ReportResult{ErrorMessage: apperr.Message(err), Err: err}
}

// stripSpace drops the line breaks the service inserts into long base64 text
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
