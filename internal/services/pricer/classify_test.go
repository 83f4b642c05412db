package pricer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "HTTP 429", err: errors.New("too many requests (HTTP 429, Code 42910000)"), expected: domain.ErrRateLimited},
		{name: "Binance weight limit", err: errors.New("<APIError> code=-1003, msg=Too much request weight used"), expected: domain.ErrRateLimited},
		{name: "Bybit retCode", err: errors.New("retCode=10006, retMsg=Too many visits!"), expected: domain.ErrRateLimited},
		{name: "Invalid symbol", err: errors.New("<APIError> code=-1121, msg=Invalid symbol."), expected: domain.ErrNotFound},
		{name: "HTTP 404", err: errors.New("HTTP 404"), expected: domain.ErrNotFound},
		{name: "Already classified", err: fmt.Errorf("wrapped: %w", domain.ErrRateLimited), expected: domain.ErrRateLimited},
		{name: "Deadline", err: context.DeadlineExceeded, expected: domain.ErrTransient},
		{name: "Unknown", err: errors.New("unexpected EOF"), expected: domain.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, normalize(tt.err), tt.expected)
		})
	}

	assert.NoError(t, normalize(nil))
}
