package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/mailsync/internal/instrumentation"
)

func disabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	config := instrumentation.DefaultConfig()
	config.Enabled = false

	provider, err := instrumentation.NewProvider(context.Background(), config)
	require.NoError(t, err)
	return provider
}

func TestNewMetricsServerRequiresProvider(t *testing.T) {
	_, err := NewMetricsServer(MetricsServerConfig{Addr: ":9090"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instrumentation provider is required")
}

func TestNewMetricsServerRequiresEnabledProvider(t *testing.T) {
	_, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    ":9090",
		InstrumentationProvider: disabledProvider(t),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}

func TestMetricsServerDefaultAddr(t *testing.T) {
	config := instrumentation.DefaultConfig()
	config.Enabled = true
	config.MetricsExporter = instrumentation.ExporterStdout
	config.TracingExporter = instrumentation.ExporterNone

	provider, err := instrumentation.NewProvider(context.Background(), config)
	require.NoError(t, err)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: provider})
	require.NoError(t, err)
	assert.Equal(t, DefaultMetricsAddr, srv.Addr())
}

func TestMetricsServerShutdownWithoutStart(t *testing.T) {
	config := instrumentation.DefaultConfig()
	config.Enabled = true
	config.MetricsExporter = instrumentation.ExporterStdout
	config.TracingExporter = instrumentation.ExporterNone

	provider, err := instrumentation.NewProvider(context.Background(), config)
	require.NoError(t, err)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: provider})
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
