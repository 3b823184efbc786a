// Package domain defines the core telemetry types and interfaces.
//
// Concept-oriented files (reading.go, role.go, relay.go, errors.go) hold shared types
// and the contracts adapters depend on. No implementation code beyond small value helpers.
package domain
