// Package buildfile loads target declarations from HCL build manifests.
//
// A manifest declares targets as blocks keyed by spec path and name:
//
//	target "src/core" "lib" {
//	  type = "library"
//	  deps = ["//src/base:util", ":gen"]
//	  sources = ["a.go", "b.go"]
//	}
//
// The "type" and "deps" attributes are structural; every other attribute
// is carried as an opaque field value on the target. Relative dependency
// specs resolve against the declaring target's spec path.
package buildfile
