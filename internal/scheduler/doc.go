// Package scheduler owns when the game state is persisted: the periodic
// save loop, the debounced change-triggered quick save, timestamped
// backups with retention cleanup, and the retry orchestration around
// the store layer.
//
// One scheduler-wide in-progress guard serializes periodic and quick
// saves; a quick save that meets the guard is skipped and relies on its
// next debounce firing.
package scheduler
