package app

import (
	"github.com/vk/fmriflow/internal/registry"
	"github.com/vk/fmriflow/internal/stages"
)

// coreModules returns the stage catalogs compiled into the binary, with
// command overrides from the configuration applied.
func coreModules(catalog *stages.Catalog) []registry.Module {
	return []registry.Module{catalog}
}
