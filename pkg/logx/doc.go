// Package logx wraps zerolog behind a small value-type Logger.
//
// Console output is human-readable with a short caller; the optional file
// sink writes JSON lines. A Service owns the sinks so level and outputs can
// change on config reload while Loggers handed out earlier keep working.
package logx
