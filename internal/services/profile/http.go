package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
)

// HTTPRegistry fetches the remote-configured profile from a registry URL
// keyed by module and action
type HTTPRegistry struct {
	URL        string
	Module     string
	Action     string
	HttpClient *http.Client
	log        *zap.Logger
}

// NewHTTPRegistry creates a registry client
func NewHTTPRegistry(rawURL, module, action string, timeout time.Duration, log *zap.Logger) *HTTPRegistry {
	return &HTTPRegistry{
		URL:        rawURL,
		Module:     module,
		Action:     action,
		HttpClient: &http.Client{Timeout: timeout},
		log:        logger.OrNop(log).Named("registry"),
	}
}

// Load fetches the profile. The registry may answer with the profile itself
// or wrapped as {"data": {...}}.
func (r *HTTPRegistry) Load(ctx context.Context) (models.PrinterProfile, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindValidation, "invalid registry URL", err)
	}
	q := u.Query()
	q.Set("module", r.Module)
	q.Set("action", r.Action)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindValidation, "invalid registry request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.HttpClient.Do(req)
	if err != nil {
		if apperr.IsTimeoutErr(err) {
			return models.PrinterProfile{}, apperr.Wrap(apperr.KindTimeout, "profile registry timed out", err)
		}
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindRemote, "profile registry unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.PrinterProfile{}, apperr.New(apperr.KindNotFound, "no remote printer profile")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.PrinterProfile{}, apperr.New(apperr.KindRemote, fmt.Sprintf("profile registry returned %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindRemote, "failed to read registry response", err)
	}

	var wrapped struct {
		Data *models.PrinterProfile `json:"data"`
	}
	var p models.PrinterProfile
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		p = *wrapped.Data
	} else if err := json.Unmarshal(body, &p); err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindRemote, "malformed registry response", err)
	}

	if p.PrinterName == "" && p.RemoteInstance == "" {
		return models.PrinterProfile{}, apperr.New(apperr.KindNotFound, "no remote printer profile")
	}
	p.Source = "remote"
	r.log.Debug("remote profile fetched", zap.Object("profile", p))
	return p, nil
}
