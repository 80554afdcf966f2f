package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/councilgate/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap/zaptest"
)

// restoreGlobals 测试结束后还原全局 provider
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	})
}

func enabledConfig() config.TelemetryConfig {
	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.ServiceName = "councilgate-test"
	cfg.ExportInterval = time.Minute
	return cfg
}

func shutdownQuietly(t *testing.T, p *Providers) {
	t.Cleanup(func() {
		// 没有采集器，导出可能报连接错误
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

// =============================================================================
// 🧪 Init
// =============================================================================

func TestInit_DisabledKeepsGlobalProvider(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	p, err := Init(context.Background(), config.DefaultTelemetryConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, before, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledInstallsSDKProviders(t *testing.T) {
	restoreGlobals(t)

	p, err := Init(context.Background(), enabledConfig(), nil,
		attribute.String("council.mode", "adaptive"))
	require.NoError(t, err)
	shutdownQuietly(t, p)

	require.True(t, p.Enabled())
	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, otel.GetMeterProvider())
	assert.Same(t, p.tp, p.TracerProvider())

	// council.evaluate 之类的 span 拿到有效的 trace id
	_, span := p.TracerProvider().Tracer("council").Start(context.Background(), "council.evaluate")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
}

func TestProviders_NilIsSafe(t *testing.T) {
	var p *Providers
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

// =============================================================================
// 🧪 资源与采样
// =============================================================================

func TestNewResource_CarriesServiceAndCouncilAttributes(t *testing.T) {
	cfg := enabledConfig()
	cfg.Environment = "staging"

	res, err := newResource(context.Background(), cfg, []attribute.KeyValue{
		attribute.String("council.mode", "scored"),
		attribute.Int("council.reviewers", 3),
	})
	require.NoError(t, err)

	set := res.Set()
	for key, want := range map[attribute.Key]attribute.Value{
		semconv.ServiceNameKey:           attribute.StringValue("councilgate-test"),
		semconv.ServiceVersionKey:        attribute.StringValue(Version()),
		semconv.DeploymentEnvironmentKey: attribute.StringValue("staging"),
		"council.mode":                   attribute.StringValue("scored"),
		"council.reviewers":              attribute.IntValue(3),
	} {
		got, ok := set.Value(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestNewResource_OmitsEmptyEnvironment(t *testing.T) {
	res, err := newResource(context.Background(), enabledConfig(), nil)
	require.NoError(t, err)

	_, ok := res.Set().Value(semconv.DeploymentEnvironmentKey)
	assert.False(t, ok)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.rate).Description(), tt.rate)
	}
}

func TestVersion(t *testing.T) {
	// 测试二进制的模块版本为 (devel)
	assert.Equal(t, "dev", Version())

	orig := version
	version = "v1.4.0"
	t.Cleanup(func() { version = orig })
	assert.Equal(t, "v1.4.0", Version())
}
