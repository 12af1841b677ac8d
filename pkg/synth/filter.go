package synth

import "strings"

// FilterOptions controls which raw events are dropped before grouping.
// Events from these origins never produce a visible step and never count
// toward another step's internal events.
type FilterOptions struct {
	// ExcludeFilePatterns drops events whose source file contains one of
	// these fragments.
	ExcludeFilePatterns []string
	// ExcludeFuncPrefixes drops function entry/exit events whose symbol
	// starts with one of these.
	ExcludeFuncPrefixes []string
}

// DefaultFilterOptions covers standard-library headers, compiler-generated
// helpers and runtime support routines.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		ExcludeFilePatterns: []string{
			"/usr/include", "/usr/lib", "/lib/", "bits/", "include/c++",
			"tracer.cpp", "trace.h",
		},
		ExcludeFuncPrefixes: []string{
			"_GLOBAL__", "__static_initialization", "__libc", "__cxa",
			"frame_dummy", "register_tm", "deregister_tm", "_init", "_fini",
			"std::", "__gnu_cxx",
		},
	}
}

// keepFile reports whether an event originating in file belongs to user
// code.
func (o FilterOptions) keepFile(file string) bool {
	for _, p := range o.ExcludeFilePatterns {
		if strings.Contains(file, p) {
			return false
		}
	}
	return true
}

// keepFunc reports whether a function symbol belongs to user code.
func (o FilterOptions) keepFunc(name string) bool {
	if name == "" || name == "unknown" {
		return false
	}
	for _, p := range o.ExcludeFuncPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return !strings.Contains(name, "::__")
}
