/*
Package log provides structured logging for slotpool using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific loggers, configurable log levels, and
helper functions for common logging patterns. Child loggers carry the
slot and session identifiers so that every line emitted during a
borrow or return can be correlated back to the request that caused it.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("engine")
	logger.Info().Str("slot", "slot1").Msg("borrow complete")
*/
package log
