// Package state defines the game-state snapshot model shared by the
// save store, the scheduler and the startup accelerator.
package state
