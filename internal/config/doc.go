// Package config defines the typed configuration surface of the save
// engine.
//
// Configuration is loaded through internal/infra/confloader with the
// priority Env > File > Default, and validated with Verify before any
// component is constructed.
package config
