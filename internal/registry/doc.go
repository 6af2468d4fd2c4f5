// Package registry tracks per-blob metadata in a single hidden manifest
// file inside the store directory and answers integrity queries against
// it. The manifest is advisory: losing it never makes a save blob
// unreadable.
package registry
