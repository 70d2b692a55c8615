// Package telemetry sets up OpenTelemetry tracing and metrics for the
// tripagent worker and gateway.
//
// Spans and metrics are exported over OTLP (gRPC or HTTP/protobuf) to a
// collector. Telemetry is off unless observability.enable_telemetry is set.
// Initialization failures never stop the process; the instance reports
// itself degraded and falls back to the global no-op providers.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	meter := tel.Meter("tripagent.gateway")
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
