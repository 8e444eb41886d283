// Package middleware provides HTTP middleware for the Steward API.
//
// The server installs the chain outermost first:
//
//	RecoveryMiddleware
//	RequestIDMiddleware     X-Request-ID in and out
//	tracing.HTTPMiddleware
//	LoggingMiddleware       one line per request, labelled by route pattern
//	MetricsMiddleware
//	auth APIKeyMiddleware   only when auth is enabled
//	ActorMiddleware         Identity from the API key, else X-Actor
//	MaxBodyBytesMiddleware
//
// Route patterns are read from chi after the request has been routed, so
// logs and metrics never carry raw engagement or job ids.
package middleware
