package nodeid

// PathSegment represents a single component of an address path, e.g., `name[index]`.
type PathSegment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// NewPathSegment creates a new path segment without an index.
func NewPathSegment(name string) PathSegment {
	return PathSegment{Name: name, Index: -1}
}

// NewPathSegmentWithIndex creates a new path segment that includes an index.
func NewPathSegmentWithIndex(name string, index int) PathSegment {
	return PathSegment{Name: name, Index: index}
}

// HasIndex returns true if the path segment has an explicit index.
func (ps PathSegment) HasIndex() bool {
	return ps.Index != -1
}

// Address is the structured representation of a unique node identifier.
type Address struct {
	Path []PathSegment
}

// ForStage builds the address of a stage instance. A negative run marks a
// stage shared by every run of the subject.
func ForStage(subject, stage string, run int) Address {
	seg := NewPathSegment(stage)
	if run >= 0 {
		seg.Index = run
	}
	return Address{Path: []PathSegment{NewPathSegment(subject), seg}}
}
