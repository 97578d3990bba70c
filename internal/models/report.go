package models

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// OutputFormat of a report run
type OutputFormat string

const (
	OutputFormatPDF OutputFormat = "pdf"
	OutputFormatXML OutputFormat = "xml"
)

// IsValid checks if the OutputFormat is a known value
func (f OutputFormat) IsValid() bool {
	return f == OutputFormatPDF || f == OutputFormatXML
}

// ReportRequest is built per call and never persisted
type ReportRequest struct {
	ReportPath     string
	ParameterName  string
	ParameterValue string
	Instance       string
	Username       string
	Secret         string
	OutputFormat   OutputFormat
}

func (r ReportRequest) String() string {
	return fmt.Sprintf("ReportRequest{path=%q %s=%q instance=%q user=%q secret=%s format=%s}",
		r.ReportPath, r.ParameterName, r.ParameterValue, r.Instance, r.Username, MaskSecret(r.Secret), r.OutputFormat)
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (r ReportRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("reportPath", r.ReportPath)
	enc.AddString("parameterName", r.ParameterName)
	enc.AddString("parameterValue", r.ParameterValue)
	enc.AddString("instance", r.Instance)
	enc.AddString("username", r.Username)
	enc.AddString("secret", MaskSecret(r.Secret))
	enc.AddString("outputFormat", string(r.OutputFormat))
	return nil
}

// ReportResult is the outcome of one report run.
// Content holds the base64-decoded artifact.
type ReportResult struct {
	Success      bool
	Content      []byte
	ErrorMessage string
	// Err carries the classified failure (apperr) when Success is false
	Err error
}

// Record is one flat row from a tabular (xml) report, keys lower-cased
type Record map[string]string
