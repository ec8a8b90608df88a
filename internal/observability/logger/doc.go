// Package logger wraps a process-wide zap logger with request scoping.
//
// Init is called once from main. Handlers and services obtain the
// request-scoped logger with From(ctx), which the logging middleware
// seeds with request_id, method and path:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Login"))
//	log.Info("login succeeded", logger.UserID(u.ID))
//
// Env "prod" emits JSON; anything else emits colored console output.
package logger
