// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, session, request)
//   - Secret redaction at the encoder
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg, err := logging.ConfigFromApp(appCfg.Logging)
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sessionID)
//	logger.Info(ctx, "participant updated", zap.String("participant", name))
//
// Components that only need a *zap.Logger take Underlying().
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	component := New(WithLogger(tl.Underlying()))
//	tl.AssertLogged(t, zapcore.WarnLevel, "unknown session")
package logging
