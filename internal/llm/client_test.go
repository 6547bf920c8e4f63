package llm

import (
	"context"
	"fmt"
	"math"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", fmt.Errorf("failed to create completion: %w", &openai.APIError{HTTPStatusCode: 503}), true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized request", &openai.RequestError{HTTPStatusCode: 401}, false},
		{"gateway timeout request", &openai.RequestError{HTTPStatusCode: 504}, true},
		{"caller cancelled", fmt.Errorf("failed to create completion: %w", context.Canceled), false},
		{"attempt deadline", context.DeadlineExceeded, true},
		{"empty completion", ErrEmptyCompletion, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestResolveTemperature(t *testing.T) {
	assert.Equal(t, float32(0.7), resolveTemperature(nil, 0.7))
	assert.Equal(t, float32(0.1), resolveTemperature(Temperature(0.1), 0.7))
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), resolveTemperature(Temperature(0), 0.7), "explicit zero is honoured")
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), resolveTemperature(nil, 0))
}
