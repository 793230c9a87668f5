package buildfile

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/target"
)

// fileRoot decodes the top-level blocks of a manifest file.
type fileRoot struct {
	Targets []*targetBlock `hcl:"target,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

// targetBlock is the raw HCL form of a target declaration. The body is
// kept opaque so that arbitrary field attributes survive decoding.
type targetBlock struct {
	SpecPath string   `hcl:"spec_path,label"`
	Name     string   `hcl:"target_name,label"`
	Body     hcl.Body `hcl:",remain"`
}

// Decl is a fully translated target declaration, ready for injection.
type Decl struct {
	Address      addr.Address
	TypeAlias    string
	Dependencies []addr.Address
	Fields       map[string]cty.Value
	File         string
}

func (d *Decl) toTarget() *target.Target {
	return target.New(d.Address, d.TypeAlias).
		WithFields(d.Fields).
		WithDependencies(d.Dependencies...)
}
