// Package recovery classifies save-write failures and drives the
// layered recovery ladder: bounded retry with exponential backoff for
// transient I/O errors, proactive backup cleanup plus one re-attempt
// for quota rejections, and immediate surfacing of permission failures.
package recovery
