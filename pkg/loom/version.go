// Package loom carries module-level metadata shared by the CLI and library
// consumers.
package loom

// Version is the loom module version.
const Version = "0.1.0"
