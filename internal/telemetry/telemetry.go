// =============================================================================
// 📡 OpenTelemetry 初始化
// =============================================================================
// 关闭时不创建任何 exporter，全局 provider 保持 noop；
// 工作流节点 span 与 LLM 调用 span 都挂在这里注册的 TracerProvider 上，
// 每个 span 启动时从 context 补上 session_id / request_id，
// 同一会话的 translate、retrieve、generate、correct 可以按会话串起来。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider，关闭遥测时两者为 nil
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// span / resource 属性键
const (
	AttrSessionID         = attribute.Key("workflow.session_id")
	AttrRequestID         = attribute.Key("http.request_id")
	AttrLLMModel          = attribute.Key("queryflow.llm.model")
	AttrVectorBackend     = attribute.Key("queryflow.vector_backend")
	AttrCheckpointBackend = attribute.Key("queryflow.checkpoint_backend")
	AttrTranslation       = attribute.Key("queryflow.translation")
)

// ServiceAttributes 描述当前部署的工作流组合，作为 resource 属性上报
func ServiceAttributes(cfg *config.Config, version string) []attribute.KeyValue {
	if version == "" || version == "dev" {
		version = BuildVersion()
	}
	checkpoint := cfg.Pipeline.CheckpointBackend
	if checkpoint != "memory" {
		checkpoint = "redis"
	}
	vector := cfg.Mongo.VectorBackend
	if vector != "memory" {
		vector = "atlas"
	}
	translation := "off"
	if cfg.Translation.Enabled {
		translation = cfg.Translation.SourceLanguage + "->" + cfg.Translation.TargetLanguage
	}
	return []attribute.KeyValue{
		semconv.ServiceVersion(version),
		AttrLLMModel.String(cfg.LLM.Model),
		AttrVectorBackend.String(vector),
		AttrCheckpointBackend.String(checkpoint),
		AttrTranslation.String(translation),
	}
}

// Init 初始化 OTel SDK 并注册为全局 provider；attrs 追加到 resource，同名键覆盖默认值
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger, attrs ...attribute.KeyValue) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "telemetry"))
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg, attrs)...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	// 跟随上游采样决策，根 span 按比例采样
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(contextAttributes{}),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Int("resource_attributes", res.Len()),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

func resourceAttributes(cfg config.TelemetryConfig, extra []attribute.KeyValue) []attribute.KeyValue {
	out := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(BuildVersion()),
	}
	return append(out, extra...)
}

// contextAttributes 在 span 启动时写入 context 中的会话与请求 ID
type contextAttributes struct{}

func (contextAttributes) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if id, ok := types.SessionID(parent); ok {
		s.SetAttributes(AttrSessionID.String(id))
	}
	if id, ok := types.RequestID(parent); ok {
		s.SetAttributes(AttrRequestID.String(id))
	}
}

func (contextAttributes) OnEnd(sdktrace.ReadOnlySpan) {}

func (contextAttributes) Shutdown(context.Context) error { return nil }

func (contextAttributes) ForceFlush(context.Context) error { return nil }

// Shutdown 刷新未发送的 span/指标并关闭 exporter，nil 或 noop 时直接返回
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// BuildVersion 从构建信息读取模块版本，取不到时返回 "dev"
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
