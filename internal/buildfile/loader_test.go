package buildfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/graph"
)

const sampleManifest = `
target "src/core" "lib" {
  type    = "library"
  deps    = ["//src/base:util", ":gen"]
  sources = ["core.go", "core_util.go"]
}

target "src/core" "gen" {
  type = "codegen"
}
`

func mustAddr(t *testing.T, spec string) addr.Address {
	t.Helper()
	a, err := addr.Parse(spec)
	require.NoError(t, err)
	return a
}

func TestLoadBytes_TranslatesBlocks(t *testing.T) {
	ctx := context.Background()
	decls, err := NewLoader().LoadBytes(ctx, "BUILD.hcl", []byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, decls, 2)

	lib := decls[0]
	assert.Equal(t, mustAddr(t, "//src/core:lib"), lib.Address)
	assert.Equal(t, "library", lib.TypeAlias)
	assert.Equal(t, []addr.Address{
		mustAddr(t, "//src/base:util"),
		mustAddr(t, "//src/core:gen"),
	}, lib.Dependencies, "relative dep should resolve against the declaring path")

	require.Contains(t, lib.Fields, "sources")
	sources := lib.Fields["sources"]
	require.True(t, sources.CanIterateElements())
	assert.Equal(t, cty.True, sources.Equals(cty.TupleVal([]cty.Value{
		cty.StringVal("core.go"),
		cty.StringVal("core_util.go"),
	})))
	assert.NotContains(t, lib.Fields, "type", "structural attributes must not leak into fields")
	assert.NotContains(t, lib.Fields, "deps")

	gen := decls[1]
	assert.Equal(t, "codegen", gen.TypeAlias)
	assert.Empty(t, gen.Dependencies)
	assert.Empty(t, gen.Fields)
}

func TestLoadBytes_MissingType(t *testing.T) {
	src := []byte(`
target "src/core" "lib" {
  deps = []
}
`)
	_, err := NewLoader().LoadBytes(context.Background(), "BUILD.hcl", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required attribute "type"`)
}

func TestLoadBytes_InvalidLabels(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad path segment", `target "src/../core" "lib" { type = "library" }`},
		{"banned name char", `target "src/core" "li:b" { type = "library" }`},
		{"bad dep spec", `target "src/core" "lib" { type = "library" deps = ["//bad//:x"] }`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader().LoadBytes(context.Background(), "BUILD.hcl", []byte(tc.src))
			assert.Error(t, err)
		})
	}
}

func TestLoadBytes_DepsMustBeAList(t *testing.T) {
	src := []byte(`
target "src/core" "lib" {
  type = "library"
  deps = "//src/base:util"
}
`)
	_, err := NewLoader().LoadBytes(context.Background(), "BUILD.hcl", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list")
}

func TestLoad_WalksDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src", "core")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "BUILD.hcl"), []byte(sampleManifest), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	decls, err := NewLoader().Load(context.Background(), dir, filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)
	assert.Len(t, decls, 2)
}

func TestInject_ForwardReferencesAllowed(t *testing.T) {
	ctx := context.Background()
	decls, err := NewLoader().LoadBytes(ctx, "BUILD.hcl", []byte(sampleManifest))
	require.NoError(t, err)

	// "lib" is declared before "gen" and depends on it; injection order
	// follows declaration order and must still succeed.
	g := graph.New()
	require.NoError(t, Inject(ctx, g, decls))

	deps, err := g.DependenciesOf(mustAddr(t, "//src/core:lib"))
	require.NoError(t, err)
	assert.Contains(t, deps, mustAddr(t, "//src/core:gen"))
}

func TestInjectSpecClosure(t *testing.T) {
	ctx := context.Background()
	src := []byte(`
target "src/base" "util" { type = "library" }
target "src/core" "lib"  { type = "library" deps = ["//src/base:util"] }
target "src/other" "x"   { type = "library" }
`)
	decls, err := NewLoader().LoadBytes(ctx, "BUILD.hcl", src)
	require.NoError(t, err)

	g := graph.New()
	require.NoError(t, InjectSpecClosure(ctx, g, decls, []addr.Address{mustAddr(t, "//src/core:lib")}))

	assert.True(t, g.ContainsAddress(mustAddr(t, "//src/core:lib")))
	assert.True(t, g.ContainsAddress(mustAddr(t, "//src/base:util")), "dependency closure should be injected")
	assert.False(t, g.ContainsAddress(mustAddr(t, "//src/other:x")), "unreachable declarations stay out")

	err = InjectSpecClosure(ctx, graph.New(), decls, []addr.Address{mustAddr(t, "//src/core:missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target declared")
}

func TestInject_DuplicateDeclaration(t *testing.T) {
	ctx := context.Background()
	src := []byte(`
target "src/core" "lib" { type = "library" }
target "src/core" "lib" { type = "binary" }
`)
	decls, err := NewLoader().LoadBytes(ctx, "BUILD.hcl", src)
	require.NoError(t, err)

	err = Inject(ctx, graph.New(), decls)
	var dup *graph.DuplicateAddressError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, mustAddr(t, "//src/core:lib"), dup.Address)
}
