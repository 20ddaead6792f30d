//go:build (darwin || linux) && !nodevices

// Shared utilities for purego-based native bindings.

package framefeed

import (
	"os"
	"path/filepath"
	"unsafe"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Add(p, length)) == 0 {
			break
		}
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// cString returns s as a NUL-terminated byte slice. Callers keep the slice
// alive for as long as C may read it.
func cString(s string) []byte {
	return append([]byte(s), 0)
}

// findLibrary searches for a native library in common locations.
// FRAMEFEED_LIB_PATH and STREAM_SDK_LIB_PATH take precedence.
func findLibrary(libName string) string {
	searchPaths := []string{
		os.Getenv("FRAMEFEED_LIB_PATH"),
		os.Getenv("STREAM_SDK_LIB_PATH"),
	}

	if exe, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Dir(exe))
	}
	searchPaths = append(searchPaths,
		"build",
		"build/ffi",
		"../build",
		"../build/ffi",
		"../../build",
		"../../build/ffi",
		"/usr/local/lib",
		"/usr/lib",
	)

	for _, p := range searchPaths {
		if p == "" {
			continue
		}
		candidate := filepath.Join(p, libName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}
