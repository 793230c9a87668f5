package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name         string
		spec         string
		opts         []ParseOption
		expectedAddr Address
	}{
		{
			name:         "path with explicit name",
			spec:         "src/java/foo:lib",
			expectedAddr: Address{SpecPath: "src/java/foo", TargetName: "lib"},
		},
		{
			name:         "name defaults to basename",
			spec:         "src/java/foo",
			expectedAddr: Address{SpecPath: "src/java/foo", TargetName: "foo"},
		},
		{
			name:         "absolute spec",
			spec:         "//src/java/foo:lib",
			expectedAddr: Address{SpecPath: "src/java/foo", TargetName: "lib"},
		},
		{
			name:         "absolute root target",
			spec:         "//:root",
			expectedAddr: Address{SpecPath: "", TargetName: "root"},
		},
		{
			name:         "absolute ignores relative_to",
			spec:         "//:root",
			opts:         []ParseOption{RelativeTo("src/foo")},
			expectedAddr: Address{SpecPath: "", TargetName: "root"},
		},
		{
			name:         "relative sibling",
			spec:         ":sibling",
			opts:         []ParseOption{RelativeTo("src/foo")},
			expectedAddr: Address{SpecPath: "src/foo", TargetName: "sibling"},
		},
		{
			name:         "relative_to has no effect when a path is given",
			spec:         "a/b/c",
			opts:         []ParseOption{RelativeTo("here")},
			expectedAddr: Address{SpecPath: "a/b/c", TargetName: "c"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := Parse(tc.spec, tc.opts...)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAddr, addr)
		})
	}
}

func TestParse_SubprojectRoots(t *testing.T) {
	roots := SubprojectRoots("subprojectA", "path/to/subprojectB")

	testCases := []struct {
		name         string
		spec         string
		relativeTo   string
		expectedAddr Address
	}{
		{
			name:         "path inside subprojectA",
			spec:         "src/python/alib",
			relativeTo:   "subprojectA/src/python",
			expectedAddr: Address{SpecPath: "subprojectA/src/python/alib", TargetName: "alib"},
		},
		{
			name:         "explicit name inside subprojectA",
			spec:         "src/python/alib:jake",
			relativeTo:   "subprojectA/src/python/alib",
			expectedAddr: Address{SpecPath: "subprojectA/src/python/alib", TargetName: "jake"},
		},
		{
			name:         "relative name inside subprojectA",
			spec:         ":rel",
			relativeTo:   "subprojectA/src/python/alib",
			expectedAddr: Address{SpecPath: "subprojectA/src/python/alib", TargetName: "rel"},
		},
		{
			name:         "nested subproject root wins by longest prefix",
			spec:         "src/python/blib:jane",
			relativeTo:   "path/to/subprojectB/src/python/blib",
			expectedAddr: Address{SpecPath: "path/to/subprojectB/src/python/blib", TargetName: "jane"},
		},
		{
			name:         "relative_to outside any root is untouched",
			spec:         "src/python/clib",
			relativeTo:   "elsewhere/src",
			expectedAddr: Address{SpecPath: "src/python/clib", TargetName: "clib"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := Parse(tc.spec, RelativeTo(tc.relativeTo), roots)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAddr, addr)
		})
	}
}

func TestParse_InvalidSpecPath(t *testing.T) {
	badSpecs := []string{
		"..",
		".",
		"//..",
		"//.",
		"a/.",
		"a/..",
		"../a",
		"a/../a",
		"/a",
		"a//b:t",
		"a/:t",
		"src/java/BUILD.hcl:t",
		"",
	}

	for _, spec := range badSpecs {
		t.Run(spec, func(t *testing.T) {
			_, err := Parse(spec)
			require.Error(t, err)
			var pathErr *InvalidSpecPathError
			assert.ErrorAs(t, err, &pathErr)
		})
	}
}

func TestParse_InvalidTargetName(t *testing.T) {
	badSpecs := []string{
		"//",
		"a:",
		"//:",
		"//:!t",
		"//:?",
		"//:=",
		`a:b\c`,
		"a:b/c",
		"a:name@variant",
	}

	for _, spec := range badSpecs {
		t.Run(spec, func(t *testing.T) {
			_, err := Parse(spec)
			require.Error(t, err)
			var nameErr *InvalidTargetNameError
			assert.ErrorAs(t, err, &nameErr)
		})
	}
}
