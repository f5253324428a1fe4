package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (p *recordingProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r.Clone())
	return nil
}

func (p *recordingProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool { return true }

func (p *recordingProcessor) Shutdown(context.Context) error   { return nil }
func (p *recordingProcessor) ForceFlush(context.Context) error { return nil }

func (p *recordingProcessor) bodies() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func newRecordingLoggerProvider(t *testing.T) (*LoggerProvider, *recordingProcessor) {
	t.Helper()
	previous := global.GetLoggerProvider()
	processor := &recordingProcessor{}
	lp, err := newLoggerProviderWithProcessor(Config{Enabled: true, ServiceName: "test"}, processor, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = lp.Shutdown(context.Background())
		global.SetLoggerProvider(previous)
	})
	return lp, processor
}

func TestNewLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(context.Background()))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestNewZapOTELCore(t *testing.T) {
	t.Run("returns a no-op core without an enabled provider", func(t *testing.T) {
		disabled, err := NewLoggerProvider(context.Background(), Config{}, zap.NewNop())
		require.NoError(t, err)

		assert.False(t, NewZapOTELCore("svc", nil, zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
		assert.False(t, NewZapOTELCore("svc", disabled, zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	})

	t.Run("forwards entries at or above the level", func(t *testing.T) {
		lp, processor := newRecordingLoggerProvider(t)
		logger := zap.New(NewZapOTELCore("inventory-engine", lp, zapcore.WarnLevel))

		logger.Info("Balance updated")
		logger.Warn("Insufficient stock", zap.String("product_id", "p-1"))
		logger.Error("Failed to append ledger entry")

		assert.Equal(t, []string{"Insufficient stock", "Failed to append ledger entry"}, processor.bodies())
		assert.Equal(t, log.SeverityWarn, processor.records[0].Severity())
	})

	t.Run("keeps the level filter on derived loggers", func(t *testing.T) {
		lp, processor := newRecordingLoggerProvider(t)
		logger := zap.New(NewZapOTELCore("inventory-engine", lp, zapcore.ErrorLevel)).With(zap.String("k", "v"))

		logger.Warn("dropped")
		logger.Error("kept")

		assert.Equal(t, []string{"kept"}, processor.bodies())
	})
}

func TestNewBridgedLogger(t *testing.T) {
	lp, processor := newRecordingLoggerProvider(t)
	core, observed := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	logger := NewBridgedLogger(base, NewZapOTELCore("inventory-engine", lp, zapcore.InfoLevel))
	logger.Debug("local only")
	logger.Info("both sinks")

	assert.Equal(t, 2, observed.Len())
	assert.Equal(t, []string{"both sinks"}, processor.bodies())
}
