// Package inventory describes the categorized inputs of one subject session
// and collects them from a BIDS-style dataset tree.
package inventory

import "slices"

// Category names one kind of input file.
type Category string

const (
	Fieldmap Category = "fmap"
	Func     Category = "func"
	T1w      Category = "t1w"
	SBRef    Category = "sbref"
)

// Categories lists every category in a stable order.
var Categories = []Category{Fieldmap, Func, T1w, SBRef}

// Inventory maps each category to an ordered list of paths. The zero value
// is an empty inventory, and accessors never return nil.
type Inventory struct {
	files map[Category][]string
}

// New builds an inventory from a category map. Unknown categories are kept
// but ignored by topology selection.
func New(files map[Category][]string) *Inventory {
	inv := &Inventory{files: make(map[Category][]string, len(files))}
	for cat, paths := range files {
		inv.files[cat] = slices.Clone(paths)
	}
	return inv
}

// Get returns a copy of the paths for a category, or an empty slice.
func (inv *Inventory) Get(cat Category) []string {
	if inv == nil || inv.files[cat] == nil {
		return []string{}
	}
	return slices.Clone(inv.files[cat])
}

// Has reports whether a category has at least one path.
func (inv *Inventory) Has(cat Category) bool {
	return inv != nil && len(inv.files[cat]) > 0
}

// Add appends paths to a category.
func (inv *Inventory) Add(cat Category, paths ...string) {
	if inv.files == nil {
		inv.files = make(map[Category][]string)
	}
	inv.files[cat] = append(inv.files[cat], paths...)
}

// Len returns the number of paths in a category.
func (inv *Inventory) Len(cat Category) int {
	if inv == nil {
		return 0
	}
	return len(inv.files[cat])
}

// Clone returns a deep copy of the inventory.
func (inv *Inventory) Clone() *Inventory {
	if inv == nil {
		return New(nil)
	}
	return New(inv.files)
}
