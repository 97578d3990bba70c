package models

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// PaperSize of the printed document
type PaperSize string

const (
	PaperSizeA4     PaperSize = "A4"
	PaperSizeA5     PaperSize = "A5"
	PaperSizeLetter PaperSize = "Letter"
	PaperSizeLegal  PaperSize = "Legal"
)

// IsValid checks if the PaperSize is a known value
func (p PaperSize) IsValid() bool {
	switch p {
	case PaperSizeA4, PaperSizeA5, PaperSizeLetter, PaperSizeLegal:
		return true
	}
	return false
}

// Orientation of the printed document
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// IsValid checks if the Orientation is a known value
func (o Orientation) IsValid() bool {
	return o == OrientationPortrait || o == OrientationLandscape
}

// PrinterProfile is the single active print configuration.
// RemoteSecret is a credential and must never reach a log line.
type PrinterProfile struct {
	PrinterName    string      `json:"printerName"`
	PaperSize      PaperSize   `json:"paperSize"`
	Orientation    Orientation `json:"orientation"`
	Copies         int         `json:"copies,omitempty"`
	RemoteInstance string      `json:"remoteInstance"`
	RemoteUsername string      `json:"remoteUsername"`
	RemoteSecret   string      `json:"remoteSecret"`
	AutoDownload   bool        `json:"autoDownload"`
	AutoPrint      bool        `json:"autoPrint"`

	// Source records where the profile came from: "local" or "remote"
	Source string `json:"source,omitempty"`
}

// WithDefaults fills unset or unknown print options
func (p PrinterProfile) WithDefaults() PrinterProfile {
	if !p.PaperSize.IsValid() {
		p.PaperSize = PaperSizeA4
	}
	if !p.Orientation.IsValid() {
		p.Orientation = OrientationPortrait
	}
	if p.Copies <= 0 {
		p.Copies = 1
	}
	return p
}

// Redacted returns a copy safe to hand to the embedded surface or a log
func (p PrinterProfile) Redacted() PrinterProfile {
	p.RemoteSecret = MaskSecret(p.RemoteSecret)
	return p
}

// HasCredentials reports whether the report service can be called
func (p PrinterProfile) HasCredentials() bool {
	return p.RemoteInstance != "" && p.RemoteUsername != "" && p.RemoteSecret != ""
}

func (p PrinterProfile) String() string {
	return fmt.Sprintf("PrinterProfile{printer=%q paper=%s orientation=%s instance=%q user=%q secret=%s source=%s}",
		p.PrinterName, p.PaperSize, p.Orientation, p.RemoteInstance, p.RemoteUsername, MaskSecret(p.RemoteSecret), p.Source)
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (p PrinterProfile) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("printerName", p.PrinterName)
	enc.AddString("paperSize", string(p.PaperSize))
	enc.AddString("orientation", string(p.Orientation))
	enc.AddString("remoteInstance", p.RemoteInstance)
	enc.AddString("remoteUsername", p.RemoteUsername)
	enc.AddString("remoteSecret", MaskSecret(p.RemoteSecret))
	enc.AddBool("autoDownload", p.AutoDownload)
	enc.AddBool("autoPrint", p.AutoPrint)
	enc.AddString("source", p.Source)
	return nil
}

// MaskSecret hides a credential, keeping only whether it is set
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
