package app

import (
	"github.com/vk/buildgridgo/internal/registry"
	"github.com/vk/buildgridgo/modules/digest"
	"github.com/vk/buildgridgo/modules/gensrc"
)

// coreModules is the definitive list of all modules that are compiled
// into the binary. Pipeline order within a goal follows this order, so
// source generation runs before digesting.
var coreModules = []registry.Module{
	&gensrc.Module{},
	&digest.Module{},
}
