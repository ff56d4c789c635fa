// Package policy holds the static security policy for sandboxed code.
//
// The tables here are pure data: which modules code may require, which
// global functions and object members are off limits, and a set of regex
// rules run against the raw source as a defense-in-depth layer. They are
// built once at startup and never mutated afterwards.
package policy

import "regexp"

// Set is the complete security policy consulted by the validator and the
// sandbox. All four tables are disjoint by intent; a name appearing in more
// than one table simply means it is rejected for more than one reason.
type Set struct {
	// AllowedModules are top-level module names that code may require().
	// A path like "stats/summary" is allowed when "stats" is allowed.
	AllowedModules map[string]struct{}

	// DeniedModules are module names rejected outright, with a message
	// naming them explicitly. Checked before AllowedModules.
	DeniedModules map[string]struct{}

	// DeniedBuiltins are global functions that must never be called
	// directly, even if the namespace no longer exposes them.
	DeniedBuiltins map[string]struct{}

	// DeniedAttributes are member names whose access (dot or bracket)
	// allows climbing from a restricted object back to the interpreter's
	// internals.
	DeniedAttributes map[string]struct{}

	// Patterns are ordered regex rules matched against the raw source.
	// This catches obfuscated constructions that slip past the AST walk;
	// it is an acknowledged incomplete layer, not a guarantee.
	Patterns []PatternRule
}

// PatternRule pairs a dangerous-source regex with its violation message.
type PatternRule struct {
	Pattern *regexp.Regexp
	Message string
}

// Default returns the canonical policy set. The returned value is shared
// process-wide; callers must treat it as read-only.
func Default() *Set {
	return defaultSet
}

var defaultSet = &Set{
	AllowedModules: stringSet(
		// Data analysis
		"dataframe",
		"csv",
		"stats",
		"regress",
		"cluster",

		// Utilities
		"strings",
		"uuid",
		"hash",
		"base64",
		"random",
	),

	DeniedModules: stringSet(
		// Host / process access
		"fs",
		"os",
		"path",
		"process",
		"child_process",
		"worker_threads",
		"cluster_workers",

		// Network
		"net",
		"http",
		"https",
		"dgram",
		"dns",
		"tls",

		// Interpreter internals
		"vm",
		"module",
		"repl",
		"inspector",
		"v8",
	),

	DeniedBuiltins: stringSet(
		"eval",
		"Function",
		"uneval",
		"importScripts",
		"fetch",
		"XMLHttpRequest",
		"setTimeout",
		"setInterval",
		"queueMicrotask",
	),

	DeniedAttributes: stringSet(
		"__proto__",
		"constructor",
		"prototype",
		"__defineGetter__",
		"__defineSetter__",
		"__lookupGetter__",
		"__lookupSetter__",
		"getPrototypeOf",
		"setPrototypeOf",
		"defineProperty",
		"defineProperties",
	),

	Patterns: []PatternRule{
		{regexp.MustCompile(`\beval\s*\(`), "eval() is not permitted"},
		{regexp.MustCompile(`\bnew\s+Function\b`), "the Function constructor is not permitted"},
		{regexp.MustCompile(`\bFunction\s*\(`), "the Function constructor is not permitted"},
		{regexp.MustCompile(`__proto__`), "__proto__ access is not permitted"},
		{regexp.MustCompile(`\bconstructor\s*\[`), "computed constructor access is not permitted"},
		{regexp.MustCompile(`\bprocess\s*\.`), "process access is not permitted"},
		{regexp.MustCompile(`\bchild_process\b`), "child_process is not permitted"},
		{regexp.MustCompile(`\brequire\s*\(\s*[^"'\)]`), "require() with a dynamic argument is not permitted"},
		{regexp.MustCompile(`\bglobalThis\s*\[`), "computed global access is not permitted"},
	},
}

func stringSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
