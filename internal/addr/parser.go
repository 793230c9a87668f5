package addr

import (
	"path"
	"strings"
)

// reservedFilenames are basenames a spec path may not end in: they name build
// manifests, not directories of targets.
var reservedFilenames = map[string]bool{
	"BUILD":     true,
	"BUILD.hcl": true,
}

// bannedNameChars are characters excluded from target names. `@` is reserved
// for variant syntax.
const bannedNameChars = "@!?=#/\\: \t\n"

// ParseOption adjusts how Parse resolves a spec.
type ParseOption func(*parseConfig)

type parseConfig struct {
	relativeTo      string
	subprojectRoots []string
}

// RelativeTo sets the directory a relative spec (`:name` or a bare path) is
// interpreted against, typically the directory of the manifest the spec was
// read from.
func RelativeTo(dir string) ParseOption {
	return func(c *parseConfig) { c.relativeTo = dir }
}

// SubprojectRoots registers embedded sub-repository roots. When the
// relative-to directory falls under one of them, resolved paths are prefixed
// by that root (longest prefix wins), so specs inside a subproject keep their
// own root-relative syntax while mapping into the outer graph's path space.
func SubprojectRoots(roots ...string) ParseOption {
	return func(c *parseConfig) { c.subprojectRoots = roots }
}

// Parse converts a string spec into an Address.
//
// Grammar: `[//]path[:name]`. A leading `//` forces absolute interpretation.
// A spec beginning with `:` uses the RelativeTo directory as its path. A
// missing `:name` defaults the name to the basename of the path.
func Parse(spec string, opts ...ParseOption) (Address, error) {
	var cfg parseConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if spec == "" {
		return Address{}, &InvalidSpecPathError{Spec: spec, Reason: "spec is empty"}
	}

	rest := spec
	absolute := false
	if strings.HasPrefix(rest, "//") {
		absolute = true
		rest = rest[2:]
		if rest == "" {
			return Address{}, &InvalidTargetNameError{Spec: spec, Reason: "absolute spec `//` names no target"}
		}
	}

	pathPart, namePart, hasName := strings.Cut(rest, ":")

	var specPath string
	switch {
	case absolute:
		specPath = pathPart
	case pathPart == "":
		// Bare `:name`: resolve against the declaring directory.
		specPath = cfg.relativeTo
	default:
		specPath = pathPart
		if root := matchSubprojectRoot(cfg.relativeTo, cfg.subprojectRoots); root != "" {
			specPath = path.Join(root, pathPart)
		}
	}

	if err := validateSpecPath(specPath, spec); err != nil {
		return Address{}, err
	}

	name := namePart
	if !hasName {
		name = path.Base(specPath)
		if specPath == "" {
			return Address{}, &InvalidTargetNameError{Spec: spec, Reason: "root-level spec must name a target"}
		}
	}
	if err := validateTargetName(name, spec); err != nil {
		return Address{}, err
	}

	return Address{SpecPath: specPath, TargetName: name}, nil
}

// matchSubprojectRoot returns the longest root that is a path prefix of
// relativeTo, or "" when none matches.
func matchSubprojectRoot(relativeTo string, roots []string) string {
	best := ""
	for _, root := range roots {
		if root == "" {
			continue
		}
		if relativeTo == root || strings.HasPrefix(relativeTo, root+"/") {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best
}

func validateSpecPath(specPath, spec string) error {
	if specPath == "" {
		return nil
	}
	if strings.HasPrefix(specPath, "/") {
		return &InvalidSpecPathError{Spec: spec, Reason: "path is absolute; spec paths are relative to the build root"}
	}
	if strings.HasSuffix(specPath, "/") {
		return &InvalidSpecPathError{Spec: spec, Reason: "path has a trailing slash"}
	}
	for _, segment := range strings.Split(specPath, "/") {
		switch segment {
		case "":
			return &InvalidSpecPathError{Spec: spec, Reason: "path contains an empty segment"}
		case ".", "..":
			return &InvalidSpecPathError{Spec: spec, Reason: "path contains a `" + segment + "` segment"}
		}
	}
	if reservedFilenames[path.Base(specPath)] {
		return &InvalidSpecPathError{Spec: spec, Reason: "path ends in the reserved build-file name " + path.Base(specPath)}
	}
	return nil
}

func validateTargetName(name, spec string) error {
	if name == "" {
		return &InvalidTargetNameError{Spec: spec, Name: name, Reason: "name is empty"}
	}
	if i := strings.IndexAny(name, bannedNameChars); i >= 0 {
		return &InvalidTargetNameError{Spec: spec, Name: name, Reason: "name contains banned character " + string(name[i])}
	}
	return nil
}
