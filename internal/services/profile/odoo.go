package profile

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
)

// odooFields maps the registry model's columns onto PrinterProfile
var odooFields = []string{
	"x_printer_name",
	"x_paper_size",
	"x_orientation",
	"x_copies",
	"x_remote_instance",
	"x_remote_username",
	"x_remote_secret",
	"x_auto_download",
	"x_auto_print",
}

// OdooRegistry reads the remote-configured profile from an Odoo model over
// XML-RPC, selecting the active record for module/action
type OdooRegistry struct {
	URL       string
	Database  string
	Username  string
	Password  string
	Model     string
	Module    string
	Action    string
	CommonURL string
	ObjectURL string
	Transport http.RoundTripper
	log       *zap.Logger
}

// NewOdooRegistry creates a new Odoo registry client
func NewOdooRegistry(url, db, username, password, model, module, action string, timeout time.Duration, log *zap.Logger) *OdooRegistry {
	url = strings.TrimRight(url, "/")
	return &OdooRegistry{
		URL:       url,
		Database:  db,
		Username:  username,
		Password:  password,
		Model:     model,
		Module:    module,
		Action:    action,
		CommonURL: fmt.Sprintf("%s/xmlrpc/2/common", url),
		ObjectURL: fmt.Sprintf("%s/xmlrpc/2/object", url),
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
		log: logger.OrNop(log).Named("odoo"),
	}
}

// authenticate returns the Odoo user id
func (o *OdooRegistry) authenticate() (int, error) {
	client, err := xmlrpc.NewClient(o.CommonURL, o.Transport)
	if err != nil {
		return 0, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{o.Database, o.Username, o.Password, make(map[string]interface{})}
	var uid int
	if err := client.Call("authenticate", args, &uid); err != nil {
		return 0, fmt.Errorf("authentication failed: %w", err)
	}
	if uid == 0 {
		return 0, fmt.Errorf("authentication rejected for %s", o.Username)
	}
	return uid, nil
}

// searchRead performs a search_read on the registry model
func (o *OdooRegistry) searchRead(uid int, domain []interface{}, fields []string, limit int) ([]map[string]interface{}, error) {
	client, err := xmlrpc.NewClient(o.ObjectURL, o.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create XML-RPC client: %w", err)
	}
	defer client.Close()

	args := []interface{}{
		o.Database,
		uid,
		o.Password,
		o.Model,
		"search_read",
		[]interface{}{domain},
		map[string]interface{}{
			"fields": fields,
			"limit":  limit,
		},
	}

	var rows []map[string]interface{}
	if err := client.Call("execute_kw", args, &rows); err != nil {
		return nil, fmt.Errorf("failed to execute search_read: %w", err)
	}
	return rows, nil
}

// Load fetches the profile record. XML-RPC has no cancellation, so ctx is
// honoured by abandoning the call; the transport timeouts bound the rest.
func (o *OdooRegistry) Load(ctx context.Context) (models.PrinterProfile, error) {
	type outcome struct {
		p   models.PrinterProfile
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		p, err := o.load()
		done <- outcome{p, err}
	}()

	select {
	case <-ctx.Done():
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindTimeout, "profile registry timed out", ctx.Err())
	case out := <-done:
		return out.p, out.err
	}
}

func (o *OdooRegistry) load() (models.PrinterProfile, error) {
	uid, err := o.authenticate()
	if err != nil {
		return models.PrinterProfile{}, o.classify(err)
	}

	domain := []interface{}{
		[]interface{}{"x_module", "=", o.Module},
		[]interface{}{"x_action", "=", o.Action},
	}
	rows, err := o.searchRead(uid, domain, odooFields, 1)
	if err != nil {
		return models.PrinterProfile{}, o.classify(err)
	}
	if len(rows) == 0 {
		return models.PrinterProfile{}, apperr.New(apperr.KindNotFound, "no remote printer profile")
	}

	row := rows[0]
	p := models.PrinterProfile{
		PrinterName:    str(row["x_printer_name"]),
		PaperSize:      models.PaperSize(str(row["x_paper_size"])),
		Orientation:    models.Orientation(str(row["x_orientation"])),
		Copies:         num(row["x_copies"]),
		RemoteInstance: str(row["x_remote_instance"]),
		RemoteUsername: str(row["x_remote_username"]),
		RemoteSecret:   str(row["x_remote_secret"]),
		AutoDownload:   boolean(row["x_auto_download"]),
		AutoPrint:      boolean(row["x_auto_print"]),
		Source:         "remote",
	}
	o.log.Debug("remote profile fetched", zap.Object("profile", p))
	return p, nil
}

func (o *OdooRegistry) classify(err error) error {
	if apperr.IsTimeoutErr(err) {
		return apperr.Wrap(apperr.KindTimeout, "profile registry timed out", err)
	}
	return apperr.Wrap(apperr.KindRemote, "profile registry failed", err)
}

// Odoo returns false for empty char fields
func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func num(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func boolean(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}
