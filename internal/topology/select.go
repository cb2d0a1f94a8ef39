package topology

import (
	"strings"

	"github.com/vk/fmriflow/internal/inventory"
	"github.com/vk/fmriflow/internal/pipelineerr"
)

// Kind names a topology variant.
type Kind string

const (
	Rich    Kind = "rich"
	Minimal Kind = "minimal"
)

// Auto lets Select decide from the inventory.
const Auto = "auto"

// overrides maps accepted workflow-type names, including the names of the
// datasets the variants were first built for.
var overrides = map[string]Kind{
	"rich":    Rich,
	"ds054":   Rich,
	"minimal": Minimal,
	"ds005":   Minimal,
}

// OverrideNames lists the names accepted by Select.
func OverrideNames() []string {
	return []string{Auto, "rich", "minimal", "ds054", "ds005"}
}

// ParseOverride validates a workflow-type name. It returns "" for auto.
func ParseOverride(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == Auto {
		return "", nil
	}
	if k, ok := overrides[name]; ok {
		return k, nil
	}
	return "", pipelineerr.Configf("unknown workflow type %q (want one of %s)", name, strings.Join(OverrideNames(), ", "))
}

// Select picks the topology for an inventory. A non-auto override wins
// over the inventory; either way a T1w image is required.
func Select(inv *inventory.Inventory, override string) (Kind, error) {
	forced, err := ParseOverride(override)
	if err != nil {
		return "", err
	}
	if !inv.Has(inventory.T1w) {
		return "", &pipelineerr.ConfigurationError{Msg: "inventory has no t1w image"}
	}
	if forced != "" {
		return forced, nil
	}
	if inv.Has(inventory.SBRef) {
		return Rich, nil
	}
	return Minimal, nil
}

func (k Kind) String() string { return string(k) }

func (k Kind) strategy() (Strategy, error) {
	switch k {
	case Rich:
		return richStrategy{}, nil
	case Minimal:
		return minimalStrategy{}, nil
	}
	return nil, pipelineerr.Configf("unknown topology %q", string(k))
}
