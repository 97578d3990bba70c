package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xelth-com/eckprint/internal/apperr"
)

type recorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *recorder) Emit(f Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return nil
}

func (r *recorder) all() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func (r *recorder) forRequest(id string) []Frame {
	var out []Frame
	for _, f := range r.all() {
		if f.RequestID == id {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) terminal(t *testing.T, id string) Frame {
	t.Helper()
	frames := r.forRequest(id)
	require.NotEmpty(t, frames, "no frames for %s", id)
	last := frames[len(frames)-1]
	require.NotNil(t, last.Success, "last frame for %s is not terminal", id)
	return last
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		action    string
		requestID string
		wantErr   bool
	}{
		{name: "object", raw: `{"action":"ping","requestId":"r1"}`, action: "ping", requestID: "r1"},
		{name: "type fallback", raw: `{"type":"ping","requestId":"r2"}`, action: "ping", requestID: "r2"},
		{name: "action wins over type", raw: `{"action":"status","type":"ping"}`, action: "status"},
		{name: "double encoded", raw: `"{\"action\":\"ping\",\"requestId\":\"r3\"}"`, action: "ping", requestID: "r3"},
		{name: "triple encoded", raw: `"\"{\\\"action\\\":\\\"ping\\\"}\""`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "garbage", raw: `not json`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, req.Action)
			assert.Equal(t, tt.requestID, req.RequestID)
			assert.True(t, json.Valid(req.Raw))
		})
	}
}

func TestBridge_UnknownActionIsIgnored(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	rec := &recorder{}

	b.Receive(context.Background(), []byte(`{"action":"noSuchAction","requestId":"r1"}`), rec)
	b.Receive(context.Background(), []byte(`{{{`), rec)
	b.Wait()

	assert.Empty(t, rec.all())
}

func TestBridge_CorrelatesConcurrentRequests(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	release := make(chan struct{})
	b.Register("slow", HandlerFunc(func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
		<-release
		return req.RequestID, nil
	}))
	b.Register("fast", HandlerFunc(func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
		return req.RequestID, nil
	}))
	rec := &recorder{}

	b.Receive(context.Background(), []byte(`{"action":"slow","requestId":"a"}`), rec)
	b.Receive(context.Background(), []byte(`{"action":"fast","requestId":"b"}`), rec)

	// the fast request is not queued behind the slow one
	require.Eventually(t, func() bool { return len(rec.forRequest("b")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.forRequest("a"))

	close(release)
	b.Wait()

	a := rec.terminal(t, "a")
	assert.Equal(t, "slow", a.Action)
	assert.True(t, *a.Success)
	assert.Equal(t, "a", a.Data)

	fb := rec.terminal(t, "b")
	assert.Equal(t, "fast", fb.Action)
	assert.Equal(t, "b", fb.Data)
}

func TestBridge_PanicBecomesErrorFrame(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	b.Register("boom", HandlerFunc(func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	}))
	rec := &recorder{}

	b.Receive(context.Background(), []byte(`{"action":"boom","requestId":"p1"}`), rec)
	b.Wait()

	f := rec.terminal(t, "p1")
	assert.Equal(t, ActionError, f.Action)
	assert.False(t, *f.Success)
	assert.Equal(t, string(apperr.KindInternal), f.Kind)
	assert.NotEmpty(t, f.Message)
}

func TestBridge_ErrorFrame(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    apperr.Kind
		message string
	}{
		{
			name:    "classified",
			err:     apperr.New(apperr.KindNotFound, "order PDF has not been downloaded"),
			kind:    apperr.KindNotFound,
			message: "order PDF has not been downloaded",
		},
		{
			name:    "internal hides cause",
			err:     apperr.Wrap(apperr.KindInternal, "something broke", errors.New("nil pointer in x")),
			kind:    apperr.KindInternal,
			message: "something broke",
		},
		{
			name:    "plain error",
			err:     errors.New("plain"),
			kind:    apperr.KindInternal,
			message: "plain",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(zaptest.NewLogger(t))
			b.Register("fail", HandlerFunc(func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
				return nil, tt.err
			}))
			rec := &recorder{}

			b.Receive(context.Background(), []byte(`{"action":"fail","requestId":"e1"}`), rec)
			b.Wait()

			frames := rec.all()
			require.Len(t, frames, 1)
			f := frames[0]
			assert.Equal(t, ActionError, f.Action)
			assert.Equal(t, "e1", f.RequestID)
			assert.False(t, *f.Success)
			assert.Equal(t, tt.message, f.Error)
			assert.Equal(t, tt.message, f.Message)
			assert.Equal(t, string(tt.kind), f.Kind)
		})
	}
}

func TestBridge_ProgressPrecedesTerminal(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	b.Register("work", HandlerFunc(func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
		progress("fetching", "one")
		progress("writing", "two")
		return "done", nil
	}))
	rec := &recorder{}

	b.Receive(context.Background(), []byte(`"{\"action\":\"work\",\"requestId\":\"w1\"}"`), rec)
	b.Wait()

	frames := rec.forRequest("w1")
	require.Len(t, frames, 3)
	assert.Equal(t, "fetching", frames[0].Step)
	assert.Nil(t, frames[0].Success)
	assert.Equal(t, "writing", frames[1].Step)
	assert.Equal(t, "work", frames[2].Action)
	assert.True(t, *frames[2].Success)
}

func TestBridge_EmitFailureDoesNotStopHandler(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	var calls int
	var mu sync.Mutex
	b.Register("ping", HandlerFunc(func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
		progress("x", "y")
		return "pong", nil
	}))

	out := EmitterFunc(func(f Frame) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("connection closed")
	})
	b.Receive(context.Background(), []byte(`{"action":"ping","requestId":"1"}`), out)
	b.Wait()

	assert.Equal(t, 2, calls)
}

func TestTyped_ValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		message string
	}{
		{name: "missing fields", raw: `{"action":"trip","requestId":"v"}`, message: "tripId is required; tripDate is required"},
		{name: "bad date", raw: `{"action":"trip","requestId":"v","tripId":"T1","tripDate":"01/02/2024"}`, message: "tripDate must be a date in yyyy-MM-dd format"},
		{name: "path in trip id", raw: `{"action":"trip","requestId":"v","tripId":"../etc","tripDate":"2024-01-02"}`, message: "tripId must not contain path separators"},
		{name: "wrong type", raw: `{"action":"trip","requestId":"v","tripId":7,"tripDate":"2024-01-02"}`, message: "malformed request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(zaptest.NewLogger(t))
			called := false
			b.Register("trip", Typed(func(ctx context.Context, in tripRequest, _ ProgressFunc) (interface{}, error) {
				called = true
				return nil, nil
			}))
			rec := &recorder{}

			b.Receive(context.Background(), []byte(tt.raw), rec)
			b.Wait()

			f := rec.terminal(t, "v")
			assert.False(t, called)
			assert.Equal(t, ActionError, f.Action)
			assert.Equal(t, string(apperr.KindValidation), f.Kind)
			assert.Contains(t, f.Message, tt.message)
		})
	}
}

func TestOrderList_AcceptsStringsAndObjects(t *testing.T) {
	var in enableRequest
	raw := `{"tripId":"T1","tripDate":"2024-01-02","orders":["SO-1",{"orderNumber":"SO-2","customer":"ACME","sequence":5}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &in))

	require.Len(t, in.Orders, 2)
	assert.Equal(t, "SO-1", in.Orders[0].OrderNumber)
	assert.Equal(t, 1, in.Orders[0].Sequence)
	assert.Equal(t, "SO-2", in.Orders[1].OrderNumber)
	assert.Equal(t, "ACME", in.Orders[1].Customer)
	assert.Equal(t, 5, in.Orders[1].Sequence)

	_, err := decode[enableRequest]([]byte(`{"tripId":"T1","tripDate":"2024-01-02","orders":[{"customer":"x"}]}`))
	assert.True(t, apperr.IsValidation(err))
}
