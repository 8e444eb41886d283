package tracing

import (
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name       string
		strategy   string
		ratio      float64
		wantErr    bool
		wantSample bool
	}{
		{name: "always", strategy: SamplerAlways, wantSample: true},
		{name: "never", strategy: SamplerNever, wantSample: false},
		{name: "ratio one", strategy: SamplerRatio, ratio: 1, wantSample: true},
		{name: "ratio zero", strategy: SamplerRatio, ratio: 0, wantSample: false},
		{name: "empty strategy is ratio", strategy: "", ratio: 1, wantSample: true},
		{name: "negative ratio", strategy: SamplerRatio, ratio: -0.1, wantErr: true},
		{name: "ratio above one", strategy: SamplerRatio, ratio: 1.1, wantErr: true},
		{name: "unknown", strategy: "adaptive", wantErr: true},
	}

	traceID := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			res := sampler.ShouldSample(sdktrace.SamplingParameters{TraceID: traceID, Name: "root"})
			sampled := res.Decision == sdktrace.RecordAndSample
			if sampled != tt.wantSample {
				t.Errorf("root span sampled = %v, want %v", sampled, tt.wantSample)
			}
		})
	}
}
