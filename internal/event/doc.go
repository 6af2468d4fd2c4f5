// Package event provides the typed event bus used by the persistence
// core to report save outcomes, resource pressure and startup progress
// to the hosting application without writing to a user-facing console.
package event
