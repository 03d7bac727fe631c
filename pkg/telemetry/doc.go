// Package telemetry provides the metrics collaborator for the black-box
// wrapper plus OpenTelemetry bootstrap helpers.
//
// It centralises trace provider setup and offers two Metrics
// implementations: an internally synchronized in-memory collector for
// tests and embedded use, and a Prometheus-backed collector for
// production scraping. Metrics recording is fire-and-forget; a failing
// collector never fails a monitored request.
package telemetry
