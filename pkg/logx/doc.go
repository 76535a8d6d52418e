// Package logx is the structured logging layer used across lxpbot.
//
// It wraps zerolog behind a small value type (logx.Logger) so that:
//   - console output stays readable (short timestamp + short caller)
//   - file output stays JSON-structured
//   - levels and sinks can be swapped at runtime on config reload
package logx
