package buildfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/graph"
)

// Loader parses HCL build manifests into target declarations.
type Loader struct{}

// NewLoader creates a manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file reachable from the given paths. A path may
// be a single file or a directory to walk. Paths that do not exist are
// skipped.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]*Decl, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("manifest loader started", "path_count", len(paths))

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("discovered manifest files", "count", len(files))

	parser := hclparse.NewParser()
	var decls []*Decl

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse manifest %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("decode manifest %s: %w", file, diags)
		}

		for _, block := range root.Targets {
			decl, err := l.translateTarget(block, file)
			if err != nil {
				return nil, err
			}
			decls = append(decls, decl)
		}
	}

	logger.Debug("manifest loading complete", "targets", len(decls))
	return decls, nil
}

// LoadBytes parses a single in-memory manifest. The filename is used in
// diagnostics only.
func (l *Loader) LoadBytes(ctx context.Context, filename string, src []byte) ([]*Decl, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse manifest %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode manifest %s: %w", filename, diags)
	}

	decls := make([]*Decl, 0, len(root.Targets))
	for _, block := range root.Targets {
		decl, err := l.translateTarget(block, filename)
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	ctxlog.FromContext(ctx).Debug("manifest decoded", "file", filename, "targets", len(decls))
	return decls, nil
}

// translateTarget converts a raw block into a Decl, validating both
// labels and resolving relative dependency specs against the block's
// own spec path.
func (l *Loader) translateTarget(block *targetBlock, file string) (*Decl, error) {
	address, err := addr.Parse(block.SpecPath+":"+block.Name, addr.RelativeTo(block.SpecPath))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid target labels %q %q: %w", file, block.SpecPath, block.Name, err)
	}

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: target %s: %w", file, address.Spec(), diags)
	}

	decl := &Decl{
		Address: address,
		Fields:  make(map[string]cty.Value),
		File:    file,
	}

	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: target %s: attribute %q: %w", file, address.Spec(), name, diags)
		}

		switch name {
		case "type":
			alias, err := valueToString(val)
			if err != nil {
				return nil, fmt.Errorf("%s: target %s: type: %w", file, address.Spec(), err)
			}
			decl.TypeAlias = alias
		case "deps":
			deps, err := valueToDeps(val, block.SpecPath)
			if err != nil {
				return nil, fmt.Errorf("%s: target %s: deps: %w", file, address.Spec(), err)
			}
			decl.Dependencies = deps
		default:
			decl.Fields[name] = val
		}
	}

	if decl.TypeAlias == "" {
		return nil, fmt.Errorf("%s: target %s: missing required attribute \"type\"", file, address.Spec())
	}
	return decl, nil
}

func valueToString(val cty.Value) (string, error) {
	converted, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if converted.IsNull() {
		return "", fmt.Errorf("must not be null")
	}
	return converted.AsString(), nil
}

func valueToDeps(val cty.Value, specPath string) ([]addr.Address, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("must be a list of target specs")
	}

	var deps []addr.Address
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		spec, err := valueToString(elem)
		if err != nil {
			return nil, err
		}
		dep, err := addr.Parse(spec, addr.RelativeTo(specPath))
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// findAllHCLFiles walks all given paths and returns the .hcl files found,
// deduplicated, in discovery order.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("access path %s: %w", path, err)
		}

		if info.IsDir() {
			err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && filepath.Ext(p) == ".hcl" {
					add(p)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	return allFiles, nil
}

// Inject materializes declarations into the graph. Declarations may
// reference each other in any order; edges to targets that never appear
// stay pending until a topological sort surfaces them.
func Inject(ctx context.Context, g *graph.Graph, decls []*Decl) error {
	for _, decl := range decls {
		t := decl.toTarget()
		if err := g.InjectTarget(ctx, t); err != nil {
			return fmt.Errorf("%s: %w", decl.File, err)
		}
	}
	return nil
}

// InjectSpecClosure injects only the declarations reachable from roots
// through declared dependency edges, in discovery order. Every root must
// be declared; dependencies on undeclared addresses are injected as
// pending edges and surface at sort time if never satisfied.
func InjectSpecClosure(ctx context.Context, g *graph.Graph, decls []*Decl, roots []addr.Address) error {
	byAddr := make(map[addr.Address]*Decl, len(decls))
	for _, decl := range decls {
		byAddr[decl.Address] = decl
	}

	visited := make(map[addr.Address]bool, len(roots))
	var closure []*Decl
	var frontier []addr.Address

	for _, root := range roots {
		if _, ok := byAddr[root]; !ok {
			return fmt.Errorf("no target declared at %s", root.Spec())
		}
		frontier = append(frontier, root)
	}

	for len(frontier) > 0 {
		a := frontier[0]
		frontier = frontier[1:]
		if visited[a] {
			continue
		}
		visited[a] = true

		decl, ok := byAddr[a]
		if !ok {
			continue
		}
		closure = append(closure, decl)
		frontier = append(frontier, decl.Dependencies...)
	}

	ctxlog.FromContext(ctx).Debug("injecting spec closure",
		"roots", len(roots), "targets", len(closure), "declared", len(decls))
	return Inject(ctx, g, closure)
}
