// Package bridge dispatches request frames from the embedded surface to
// handlers and answers with correlated progress and terminal frames.
package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
)

// ProgressFunc emits a progress frame for the request being handled
type ProgressFunc func(step, message string)

// Handler serves one action. The returned value becomes the terminal
// frame's data; an error becomes an error frame.
type Handler interface {
	Handle(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error)
}

// HandlerFunc adapts a func to Handler
type HandlerFunc func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error)

func (fn HandlerFunc) Handle(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
	return fn(ctx, req, progress)
}

// Typed wraps fn so the frame is decoded into T and validated first.
// Validation failures come back as VALIDATION errors.
func Typed[T any](fn func(ctx context.Context, in T, progress ProgressFunc) (interface{}, error)) Handler {
	return HandlerFunc(func(ctx context.Context, req Request, progress ProgressFunc) (interface{}, error) {
		in, err := decode[T](req.Raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in, progress)
	})
}

// Bridge routes request frames by action name. Every request runs in its
// own goroutine; there is no ordering between requests.
type Bridge struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	wg  sync.WaitGroup
	log *zap.Logger
}

// New creates an empty bridge
func New(log *zap.Logger) *Bridge {
	return &Bridge{
		handlers: make(map[string]Handler),
		log:      logger.OrNop(log).Named("bridge"),
	}
}

// Register binds action to h, replacing any previous handler
func (b *Bridge) Register(action string, h Handler) {
	b.mu.Lock()
	b.handlers[action] = h
	b.mu.Unlock()
}

// Actions lists the registered action names
func (b *Bridge) Actions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.handlers))
	for a := range b.handlers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Receive decodes raw and starts its handler. Frames that cannot be decoded
// or name no registered action are dropped without a reply.
func (b *Bridge) Receive(ctx context.Context, raw []byte, out Emitter) {
	req, err := ParseRequest(raw)
	if err != nil {
		b.log.Debug("dropping undecodable frame", zap.Error(err))
		return
	}

	b.mu.RLock()
	h, ok := b.handlers[req.Action]
	b.mu.RUnlock()
	if !ok {
		b.log.Debug("no handler for action", zap.String("action", req.Action), zap.String("requestId", req.RequestID))
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatch(ctx, h, req, out)
	}()
}

// Wait blocks until every running handler has sent its terminal frame
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) dispatch(ctx context.Context, h Handler, req Request, out Emitter) {
	log := b.log.With(zap.String("action", req.Action), zap.String("requestId", req.RequestID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			b.emit(out, errorFrame(req.RequestID, fmt.Sprintf("internal error in %s", req.Action), string(apperr.KindInternal)), log)
		}
	}()

	progress := func(step, message string) {
		b.emit(out, progressFrame(req, step, message), log)
	}

	data, err := h.Handle(ctx, req, progress)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindInternal {
			log.Error("handler failed", zap.Error(err))
		} else {
			log.Info("request failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		b.emit(out, errorFrame(req.RequestID, apperr.Message(err), string(kind)), log)
		return
	}
	b.emit(out, successFrame(req, data), log)
}

func (b *Bridge) emit(out Emitter, f Frame, log *zap.Logger) {
	if err := out.Emit(f); err != nil {
		log.Debug("frame not delivered", zap.String("frame", f.Action), zap.Error(err))
	}
}
