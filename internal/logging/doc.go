// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package logging provides centralized zerolog-based structured logging.
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("file", name).Int("records", n).Msg("Journal segment consumed")
//	logging.Error().Err(err).Msg("Flush failed")
//
// # Configuration
//
// Environment Variables:
//
//	LOG_LEVEL   - Minimum log level: trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - Output format: json, console (default: json)
//	LOG_CALLER  - Include caller file:line: true, false (default: false)
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
//
// # Context-Aware Logging
//
// Request and correlation IDs travel in the context and are attached by Ctx:
//
//	ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())
//	logging.Ctx(ctx).Info().Msg("Entries accepted")
//
// # Adapters
//
//   - NewSlogLogger: slog.Logger over zerolog, used by the supervisor via sutureslog
//   - NewWatermillAdapter: watermill.LoggerAdapter over zerolog, used by the
//     NATS writer
//
// # Credential Events
//
// SecurityLogger records credential rejections and rotations with tokens and
// error bodies sanitized:
//
//	sec := logging.NewSecurityLogger()
//	sec.LogCredentialRotated("audit.example.com", "primary", "secondary")
//
// Every line carries service=auditwal. Set AUDIT_QUIET_TESTS=1 to silence
// the default logger before Init runs.
package logging
