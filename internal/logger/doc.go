// Package logger wraps zap with a process-wide sugared logger and a shared atomic level.
// Components attach named child loggers to a context (the session manager uses "session"),
// and the helpers always log through the logger carried by the context.
package logger
