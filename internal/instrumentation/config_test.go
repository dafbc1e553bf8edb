package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "mailsync", config.ServiceName)
	assert.True(t, config.Enabled)
	assert.Equal(t, ExporterPrometheus, config.MetricsExporter)
	assert.Equal(t, ExporterNone, config.TracingExporter)
	assert.Equal(t, 0.1, config.TraceSamplingRate)
	assert.Equal(t, "/metrics", config.PrometheusEndpoint)
	assert.False(t, config.DetailedLabels)
	assert.True(t, config.AuditLogging.Enabled)
	assert.False(t, config.AuditLogging.IncludePII)
}

func TestDefaultConfigFromEnvironment(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "mailsync-staging")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("TRACING_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("METRICS_DETAILED_LABELS", "true")

	config := DefaultConfig()

	assert.Equal(t, "mailsync-staging", config.ServiceName)
	assert.False(t, config.Enabled)
	assert.Equal(t, ExporterStdout, config.MetricsExporter)
	assert.Equal(t, ExporterOTLP, config.TracingExporter)
	assert.Equal(t, "collector:4318", config.OTLPEndpoint)
	assert.Equal(t, 0.5, config.TraceSamplingRate)
	assert.True(t, config.DetailedLabels)
}

func TestDefaultConfigInvalidBoolFallsBack(t *testing.T) {
	t.Setenv("INSTRUMENTATION_ENABLED", "not-a-bool")

	config := DefaultConfig()
	assert.True(t, config.Enabled)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "sampling rate too high",
			mutate:  func(c *Config) { c.TraceSamplingRate = 1.5 },
			wantErr: "trace sampling rate",
		},
		{
			name:    "sampling rate negative",
			mutate:  func(c *Config) { c.TraceSamplingRate = -0.1 },
			wantErr: "trace sampling rate",
		},
		{
			name:    "unknown metrics exporter",
			mutate:  func(c *Config) { c.MetricsExporter = "statsd" },
			wantErr: "invalid metrics exporter",
		},
		{
			name:    "unknown tracing exporter",
			mutate:  func(c *Config) { c.TracingExporter = "jaeger" },
			wantErr: "invalid tracing exporter",
		},
		{
			name: "otlp tracing without endpoint",
			mutate: func(c *Config) {
				c.TracingExporter = ExporterOTLP
				c.OTLPEndpoint = ""
			},
			wantErr: "OTLP endpoint is required",
		},
		{
			name: "otlp metrics without endpoint",
			mutate: func(c *Config) {
				c.MetricsExporter = ExporterOTLP
				c.OTLPEndpoint = ""
			},
			wantErr: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
