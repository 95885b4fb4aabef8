// Package logx wraps zerolog for the gateway.
//
// Loggers are cheap values carrying fixed fields. A Service owns the sinks
// (console, JSON file, operator chat) and can be re-applied at runtime when
// the logging config changes; loggers derived from it follow along.
package logx
