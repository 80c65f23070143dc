// Package telemetry wires OpenTelemetry tracing and metrics export.
//
// Exporters speak OTLP over gRPC or HTTP/protobuf. Telemetry is off by
// default; when it is on but the exporter cannot be built, the instance is
// marked degraded and callers fall back to the global providers.
//
//	tel, err := telemetry.New(ctx, telemetry.ConfigFromApp(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	tracer := tel.Tracer("switchboard/orchestrator")
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
