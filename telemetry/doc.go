// Package telemetry publishes dispatch results to NATS so other services can follow
// what the bridge played. Each result becomes one JSON Event on the configured subject.
package telemetry
