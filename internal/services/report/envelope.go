package report

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"text/template"

	"github.com/xelth-com/eckprint/internal/models"
)

// contentElements are the response elements that may carry the artifact,
// in the order they are tried.
var contentElements = []string{"reportBytes", "reportData"}

var envelopeTmpl = template.Must(template.New("runReport").Funcs(template.FuncMap{"x": escape}).Parse(
	`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:pub="http://xmlns.oracle.com/oxp/service/PublicReportService">` +
		`<soap:Header>` +
		`<wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">` +
		`<wsse:UsernameToken>` +
		`<wsse:Username>{{x .Username}}</wsse:Username>` +
		`<wsse:Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText">{{x .Secret}}</wsse:Password>` +
		`</wsse:UsernameToken>` +
		`</wsse:Security>` +
		`</soap:Header>` +
		`<soap:Body>` +
		`<pub:runReport>` +
		`<pub:reportRequest>` +
		`<pub:attributeFormat>{{x .OutputFormat}}</pub:attributeFormat>` +
		`<pub:flattenXML>false</pub:flattenXML>` +
		`<pub:parameterNameValues>` +
		`<pub:item>` +
		`<pub:name>{{x .ParameterName}}</pub:name>` +
		`<pub:values><pub:item>{{x .ParameterValue}}</pub:item></pub:values>` +
		`</pub:item>` +
		`</pub:parameterNameValues>` +
		`<pub:reportAbsolutePath>{{x .ReportPath}}</pub:reportAbsolutePath>` +
		`<pub:sizeOfDataChunkDownload>-1</pub:sizeOfDataChunkDownload>` +
		`</pub:reportRequest>` +
		`<pub:appParams></pub:appParams>` +
		`</pub:runReport>` +
		`</soap:Body>` +
		`</soap:Envelope>`))

func escape(v interface{}) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case models.OutputFormat:
		s = string(t)
	}
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// BuildEnvelope renders the runReport request envelope for req
func BuildEnvelope(req models.ReportRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := envelopeTmpl.Execute(&buf, req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// envelopeContent holds what was found in a response envelope
type envelopeContent struct {
	found   bool
	payload string
	fault   string
}

// parseEnvelope walks the response tokens, collecting the text of every
// candidate content element and any SOAP fault message. The first candidate
// in contentElements order that is present wins.
func parseEnvelope(r io.Reader) (envelopeContent, error) {
	dec := xml.NewDecoder(r)
	texts := make(map[string]*strings.Builder, len(contentElements))
	var (
		current string
		fault   strings.Builder
		inFault bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return envelopeContent{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if isContentElement(name) {
				if _, seen := texts[name]; !seen {
					texts[name] = &strings.Builder{}
					current = name
				}
			}
			// SOAP 1.1 faultstring, SOAP 1.2 Reason/Text
			if name == "faultstring" || name == "Text" {
				inFault = true
			}
		case xml.EndElement:
			if t.Name.Local == current {
				current = ""
			}
			if t.Name.Local == "faultstring" || t.Name.Local == "Text" {
				inFault = false
			}
		case xml.CharData:
			if current != "" {
				texts[current].Write(t)
			}
			if inFault {
				fault.Write(t)
			}
		}
	}

	for _, name := range contentElements {
		if b, ok := texts[name]; ok {
			return envelopeContent{found: true, payload: b.String()}, nil
		}
	}
	return envelopeContent{fault: strings.TrimSpace(fault.String())}, nil
}

func isContentElement(name string) bool {
	for _, n := range contentElements {
		if n == name {
			return true
		}
	}
	return false
}
