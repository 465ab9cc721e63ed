// Package observability wires OpenTelemetry tracing and metrics and defines
// the instrument sets the service records into.
//
//	tp, err := observability.InitTracer(ctx, observability.TracerConfigFrom(cfg, name, version, env))
//	defer tp.Shutdown(ctx)
//
//	mp, err := observability.InitMeter(ctx, &meterCfg)
//	defer mp.Shutdown(ctx)
//
//	m, err := observability.NewSignedURLMetrics(observability.Meter("playurl"))
//	m.Hit(ctx)
//
// Instrument sets work against any metric.Meter, so tests read them back
// through an sdkmetric.ManualReader.
package observability
