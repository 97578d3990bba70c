package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
)

// TripStore persists TripAutoPrintConfig records as one JSON array
type TripStore struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

// NewTripStore creates a trip config store backed by path
func NewTripStore(path string, log *zap.Logger) *TripStore {
	return &TripStore{path: path, log: logger.OrNop(log).Named("tripstore")}
}

// Put stores cfg, replacing any config for the same trip, and returns what
// was stored
func (s *TripStore) Put(cfg models.TripAutoPrintConfig) (models.TripAutoPrintConfig, error) {
	if err := ValidateTrip(cfg.TripID, cfg.TripDate); err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	if cfg.Orders == nil {
		cfg.Orders = []models.OrderDescriptor{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	configs, err := s.load()
	if err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	if i := s.indexOf(configs, cfg.TripID, cfg.TripDate); i >= 0 {
		configs[i] = cfg
	} else {
		configs = append(configs, cfg)
	}
	if err := writeJSON(s.path, configs); err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	s.log.Debug("trip config stored", zap.String("trip", cfg.Key()), zap.Bool("enabled", cfg.Enabled))
	return cfg, nil
}

// Disable clears the armed flag of a trip, keeping its orders
func (s *TripStore) Disable(tripID, tripDate string) (models.TripAutoPrintConfig, error) {
	if err := ValidateTrip(tripID, tripDate); err != nil {
		return models.TripAutoPrintConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	configs, err := s.load()
	if err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	i := s.indexOf(configs, tripID, tripDate)
	if i < 0 {
		// nothing was armed
		return models.TripAutoPrintConfig{TripID: tripID, TripDate: tripDate, Orders: []models.OrderDescriptor{}}, nil
	}
	if !configs[i].Enabled {
		return configs[i], nil
	}
	configs[i].Enabled = false
	if err := writeJSON(s.path, configs); err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	return configs[i], nil
}

// Get returns the config for a trip
func (s *TripStore) Get(tripID, tripDate string) (models.TripAutoPrintConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs, err := s.load()
	if err != nil {
		return models.TripAutoPrintConfig{}, err
	}
	if i := s.indexOf(configs, tripID, tripDate); i >= 0 {
		return configs[i], nil
	}
	return models.TripAutoPrintConfig{}, apperr.New(apperr.KindNotFound, "no auto-print config for trip "+tripDate+"/"+tripID)
}

// Enabled returns every armed trip
func (s *TripStore) Enabled() ([]models.TripAutoPrintConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configs, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.TripAutoPrintConfig, 0, len(configs))
	for _, c := range configs {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *TripStore) load() ([]models.TripAutoPrintConfig, error) {
	var configs []models.TripAutoPrintConfig
	if err := readJSON(s.path, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *TripStore) indexOf(configs []models.TripAutoPrintConfig, tripID, tripDate string) int {
	for i := range configs {
		if configs[i].TripID == tripID && configs[i].TripDate == tripDate {
			return i
		}
	}
	return -1
}
