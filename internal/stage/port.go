package stage

// PortType tags the kind of value flowing through a port. Connections are
// only valid between ports of the same type.
type PortType string

const (
	Volume       PortType = "volume"
	Series       PortType = "series"
	Mask         PortType = "mask"
	Segmentation PortType = "segmentation"
	ProbMaps     PortType = "probmaps"
	Transform    PortType = "transform"
	Table        PortType = "table"
	FieldmapMap  PortType = "fieldmap"
	Text         PortType = "text"
)

// IsFile reports whether values of this type are paths that must exist
// after the producing stage finishes.
func (t PortType) IsFile() bool {
	return t != Text
}

// Port is a named, typed slot on a stage.
type Port struct {
	Name string
	Type PortType
	// Multi marks an aggregation input that accepts several producers,
	// ordered by the slot on each connection.
	Multi bool
}

// In is a shorthand for a single-producer input port.
func In(name string, t PortType) Port { return Port{Name: name, Type: t} }

// Out is a shorthand for an output port.
func Out(name string, t PortType) Port { return Port{Name: name, Type: t} }

// Gather is a shorthand for an aggregation input port.
func Gather(name string, t PortType) Port { return Port{Name: name, Type: t, Multi: true} }
