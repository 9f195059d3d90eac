//go:build !debug

// Package debug holds the build-tag controlled debug flag and assertions
// shared by nlbridge components.
package debug

// Debug is true when the binary is built with the debug tag.
const Debug = false

// Assert does nothing unless the debug build tag is set.
func Assert(condition bool, message ...string) {}
