package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"direct", New(KindNotFound, "pdf missing"), KindNotFound},
		{"wrapped with fmt", fmt.Errorf("print: %w", New(KindValidation, "bad")), KindValidation},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTimeout},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIO, "failed to write ledger", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to write ledger: disk full", err.Error())
	assert.True(t, IsIO(err))
	assert.False(t, IsRemote(err))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "orderNumber is required", Message(New(KindValidation, "orderNumber is required")))
	assert.Equal(t, "unexpected failure", Message(Wrap(KindInternal, "unexpected failure", errors.New("nil map"))))
	assert.Equal(t, "HTTP 500: upstream", Message(Wrap(KindRemote, "HTTP 500", errors.New("upstream"))))
}
