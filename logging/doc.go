// Package logging provides a minimal logging interface and adapters for promptchain.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the chain, tool dispatcher, parser and event bus use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	proc := chain.New(log, func(o *chain.Options) { o.Logger = logger })
//
// Log entries use dotted event names ("tool.call.failed", "chain.stage.complete")
// followed by key/value attributes.
package logging
