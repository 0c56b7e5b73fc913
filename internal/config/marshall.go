// Package config implements the marshall-then-seal configuration pattern
// of opst-knitfab's pkg/configs/backend/configMarshall.go: a mutable,
// YAML-tagged "Marshall" struct is decoded from file, then sealed into an
// immutable, getter-only config value, panicking with a path-qualified
// message if a required field is missing (SPEC_FULL.md §10.2).
package config

// Marshalled is implemented by every `*XxxConfigMarshall` type in this
// package; S is the sealed, immutable config type it produces.
type Marshalled[S any] interface {
	trySeal(path string) S
}

// TrySeal seals conf, panicking on any missing required field. Callers at
// process startup are expected to let that panic become a fatal exit
// (SPEC_FULL.md §10.2: "a config load error is a log.Fatal").
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

func required(v, path string) string {
	if v == "" {
		panic(path + " is required")
	}
	return v
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}
