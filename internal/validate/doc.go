// Package validate checks game-state snapshots before they are written
// and after they are loaded, and repairs the defects it knows how to
// fix: missing critical sections, wrongly typed sections and negative
// numeric progress values.
package validate
