package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/models"
)

func tripConfig() models.TripAutoPrintConfig {
	return models.TripAutoPrintConfig{
		TripID:   "T100",
		TripDate: "2024-01-01",
		Enabled:  true,
		Orders:   []models.OrderDescriptor{{OrderNumber: "O1"}, {OrderNumber: "O2"}},
	}
}

func TestTripStore_PutIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.json")
	s := NewTripStore(path, nil)

	first, err := s.Put(tripConfig())
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := s.Put(tripConfig())
	require.NoError(t, err)
	after, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, string(before), string(after))

	got, err := s.Get("T100", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestTripStore_Disable(t *testing.T) {
	s := NewTripStore(filepath.Join(t.TempDir(), "trips.json"), nil)
	_, err := s.Put(tripConfig())
	require.NoError(t, err)

	cfg, err := s.Disable("T100", "2024-01-01")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Len(t, cfg.Orders, 2)

	again, err := s.Disable("T100", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	enabled, err := s.Enabled()
	require.NoError(t, err)
	assert.Empty(t, enabled)

	unknown, err := s.Disable("T999", "2024-01-01")
	require.NoError(t, err)
	assert.False(t, unknown.Enabled)
}

func TestTripStore_Validation(t *testing.T) {
	s := NewTripStore(filepath.Join(t.TempDir(), "trips.json"), nil)

	cfg := tripConfig()
	cfg.TripDate = "2024-13-01"
	_, err := s.Put(cfg)
	assert.True(t, apperr.IsValidation(err))

	_, err = s.Get("T100", "2024-01-01")
	assert.True(t, apperr.IsNotFound(err))
}
