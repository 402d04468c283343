package analyze

import (
	"context"
	"encoding/json"
	"time"
)

// mockSummary is the fixed payload every mock analysis returns.
const mockSummary = `{"patient_name":"[REDACTED]","blood_sugar":{"value":95,"unit":"mg/dL","status":"Normal"},"cholesterol":{"value":210,"unit":"mg/dL","status":"High"}}`

// MockAnalyzer returns a fixed, bit-identical summary after a simulated
// delay. It keeps pipeline development and tests off the network.
type MockAnalyzer struct {
	delay time.Duration
}

func NewMockAnalyzer(delay time.Duration) *MockAnalyzer {
	return &MockAnalyzer{delay: delay}
}

func (a *MockAnalyzer) Analyze(ctx context.Context, redactedText string) (json.RawMessage, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return json.RawMessage(mockSummary), nil
}
