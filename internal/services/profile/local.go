package profile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/moby/sys/atomicwriter"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
	"github.com/xelth-com/eckprint/internal/utils"
)

// Source provides the active printer profile
type Source interface {
	Load(ctx context.Context) (models.PrinterProfile, error)
}

const profileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "printerName":    {"type": "string"},
    "paperSize":      {"enum": ["", "A4", "A5", "Letter", "Legal"]},
    "orientation":    {"enum": ["", "portrait", "landscape"]},
    "copies":         {"type": "integer", "minimum": 0, "maximum": 99},
    "remoteInstance": {"type": "string"},
    "remoteUsername": {"type": "string"},
    "remoteSecret":   {"type": "string"},
    "autoDownload":   {"type": "boolean"},
    "autoPrint":      {"type": "boolean"},
    "source":         {"type": "string"}
  },
  "additionalProperties": false
}`

var schema = mustSchema(profileSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return sc
}

// Validate checks raw profile JSON against the profile schema
func Validate(data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "printer profile is not valid JSON", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return apperr.New(apperr.KindValidation, "invalid printer profile: "+strings.Join(msgs, "; "))
	}
	return nil
}

// LocalStore is the printer profile file on this machine.
// The secret is sealed at rest when an encryption key is configured.
type LocalStore struct {
	path   string
	encKey string
	mu     sync.Mutex
	log    *zap.Logger
}

// NewLocalStore creates a profile store backed by path
func NewLocalStore(path, encKey string, log *zap.Logger) *LocalStore {
	return &LocalStore{path: path, encKey: encKey, log: logger.OrNop(log).Named("profile")}
}

// Path returns the profile file location
func (s *LocalStore) Path() string { return s.path }

// Load reads and validates the profile file
func (s *LocalStore) Load(_ context.Context) (models.PrinterProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.PrinterProfile{}, apperr.New(apperr.KindNotFound, "no local printer profile")
	}
	if err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindIO, "failed to read printer profile", err)
	}
	if err := Validate(data); err != nil {
		return models.PrinterProfile{}, err
	}

	var p models.PrinterProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindValidation, "invalid printer profile", err)
	}
	secret, err := utils.OpenSecret(p.RemoteSecret, s.encKey)
	if err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindValidation, "cannot open stored secret", err)
	}
	p.RemoteSecret = secret
	p.Source = "local"
	return p, nil
}

// Save writes p, sealing the secret. An empty or masked secret keeps the
// stored one so a redacted profile can be edited and saved back.
func (s *LocalStore) Save(_ context.Context, p models.PrinterProfile) (models.PrinterProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.RemoteSecret == "" || p.RemoteSecret == models.MaskSecret("x") {
		p.RemoteSecret = s.storedSecretLocked()
	}
	sealed, err := utils.SealSecret(p.RemoteSecret, s.encKey)
	if err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindInternal, "failed to seal secret", err)
	}

	onDisk := p
	onDisk.RemoteSecret = sealed
	onDisk.Source = ""
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindInternal, "failed to encode printer profile", err)
	}
	if err := Validate(data); err != nil {
		return models.PrinterProfile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindIO, "failed to create profile directory", err)
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o600); err != nil {
		return models.PrinterProfile{}, apperr.Wrap(apperr.KindIO, "failed to write printer profile", err)
	}

	s.log.Info("printer profile saved", zap.Object("profile", p))
	p.Source = "local"
	return p, nil
}

// storedSecretLocked returns the plaintext secret currently on disk, if any
func (s *LocalStore) storedSecretLocked() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	var p models.PrinterProfile
	if json.Unmarshal(data, &p) != nil {
		return ""
	}
	secret, err := utils.OpenSecret(p.RemoteSecret, s.encKey)
	if err != nil {
		return ""
	}
	return secret
}
