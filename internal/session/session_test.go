package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/models"
)

type fakeSource struct {
	profile models.PrinterProfile
	err     error
	calls   atomic.Int32
	delay   time.Duration
	saved   []models.PrinterProfile
}

func (f *fakeSource) Load(ctx context.Context) (models.PrinterProfile, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.PrinterProfile{}, apperr.Wrap(apperr.KindTimeout, "timed out", ctx.Err())
		}
	}
	return f.profile, f.err
}

func (f *fakeSource) Save(_ context.Context, p models.PrinterProfile) (models.PrinterProfile, error) {
	f.saved = append(f.saved, p)
	f.profile = p
	return p, nil
}

var report = ReportSettings{Path: "/Custom/PackingSlip.xdo", ParameterName: "P_ORDER_NUMBER"}

func TestSession_RemoteWins(t *testing.T) {
	local := &fakeSource{profile: models.PrinterProfile{PrinterName: "local", Source: "local"}}
	remote := &fakeSource{profile: models.PrinterProfile{PrinterName: "remote", Source: "remote"}}
	s := New(local, remote, time.Second, report, zaptest.NewLogger(t))

	p, err := s.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remote", p.PrinterName)
	assert.Equal(t, models.PaperSizeA4, p.PaperSize, "defaults applied")

	// cached
	_, err = s.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), remote.calls.Load())
	assert.Equal(t, int32(0), local.calls.Load())
	assert.False(t, s.LoadedAt().IsZero())
}

func TestSession_FallsBackToLocal(t *testing.T) {
	local := &fakeSource{profile: models.PrinterProfile{PrinterName: "local"}}
	remote := &fakeSource{delay: time.Second}
	s := New(local, remote, 20*time.Millisecond, report, nil)

	p, err := s.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", p.PrinterName)
}

func TestSession_RemoteErrorSurfacesWhenNoLocal(t *testing.T) {
	local := &fakeSource{err: apperr.New(apperr.KindNotFound, "no local printer profile")}
	remote := &fakeSource{err: apperr.New(apperr.KindRemote, "registry returned 502")}
	s := New(local, remote, time.Second, report, nil)

	_, err := s.Profile(context.Background())
	assert.True(t, apperr.IsRemote(err))
}

func TestSession_InvalidateAndRefresh(t *testing.T) {
	local := &fakeSource{profile: models.PrinterProfile{PrinterName: "one"}}
	s := New(local, nil, 0, report, nil)

	p, err := s.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", p.PrinterName)

	local.profile.PrinterName = "two"
	p, _ = s.Profile(context.Background())
	assert.Equal(t, "one", p.PrinterName)

	s.Invalidate()
	assert.True(t, s.LoadedAt().IsZero())
	p, _ = s.Profile(context.Background())
	assert.Equal(t, "two", p.PrinterName)

	local.profile.PrinterName = "three"
	p, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "three", p.PrinterName)
}

func TestSession_SaveLocalInvalidates(t *testing.T) {
	local := &fakeSource{profile: models.PrinterProfile{PrinterName: "one"}}
	s := New(local, nil, 0, report, nil)
	_, _ = s.Profile(context.Background())

	_, err := s.SaveLocal(context.Background(), models.PrinterProfile{PrinterName: "saved"})
	require.NoError(t, err)

	p, _ := s.Profile(context.Background())
	assert.Equal(t, "saved", p.PrinterName)
}

func TestSession_OrderReport(t *testing.T) {
	local := &fakeSource{profile: models.PrinterProfile{
		RemoteInstance: "https://erp.example.com",
		RemoteUsername: "svc_print",
		RemoteSecret:   "hunter2",
	}}
	s := New(local, nil, 0, report, nil)

	req, err := s.OrderReport(context.Background(), "SO-1")
	require.NoError(t, err)
	assert.Equal(t, "SO-1", req.ParameterValue)
	assert.Equal(t, "P_ORDER_NUMBER", req.ParameterName)
	assert.Equal(t, "/Custom/PackingSlip.xdo", req.ReportPath)
	assert.Equal(t, models.OutputFormatPDF, req.OutputFormat)

	s2 := New(&fakeSource{profile: models.PrinterProfile{PrinterName: "x"}}, nil, 0, report, nil)
	_, err = s2.OrderReport(context.Background(), "SO-1")
	assert.True(t, apperr.IsValidation(err))
}
