package services

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// stubClient is a canned gateway for service tests. Each call returns the
// configured value or error; WithTier returns the receiver unchanged.
// Call counters are atomic because some services fan out concurrently.
type stubClient struct {
	jsonResult map[string]any
	jsonErr    error
	textResult string
	textErr    error
	embeds     [][]float32
	embedErr   error

	jsonCalls atomic.Int64
	textCalls atomic.Int64
}

func (s *stubClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	if s.embeds != nil {
		return s.embeds, nil
	}
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (s *stubClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	s.jsonCalls.Add(1)
	if s.jsonErr != nil {
		return nil, s.jsonErr
	}
	return s.jsonResult, nil
}

func (s *stubClient) GenerateText(ctx context.Context, system, user string) (string, error) {
	s.textCalls.Add(1)
	if s.textErr != nil {
		return "", s.textErr
	}
	return s.textResult, nil
}

func (s *stubClient) WithTier(tier openai.Tier) openai.Client { return s }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}
