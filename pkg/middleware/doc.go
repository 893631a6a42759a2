// Package middleware provides net/http middleware for the nettables
// admin surface.
//
// # Prometheus
//
// Prometheus counts requests and observes their latency, labelled by
// the chi route pattern rather than the raw path so that /entries/*
// stays a single series:
//
//	r := chi.NewRouter()
//	r.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//
// # OpenTelemetry
//
// OpenTelemetry opens a server span per request using the global tracer
// provider unless WithTracerProvider is given:
//
//	r.Use(middleware.OpenTelemetry(middleware.WithTracerName("nettables")))
//
// Handlers reach the span through SpanFromContext(r.Context()).
package middleware
