package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/quarantine-scanner/internal/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"app error code", fmt.Errorf("route: %w", apperrors.Staging(errors.New("x"), "a", "k")), "staging"},
		{"deadline", fmt.Errorf("scan: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"path error", fmt.Errorf("open: %w", &os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}), "errors_errorstring"},
		{"plain", errors.New("boom"), "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
