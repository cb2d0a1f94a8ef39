package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	subjectRegex = regexp.MustCompile(`^sub-[a-zA-Z0-9]+$`)
	stageRegex   = regexp.MustCompile(`^([a-z][a-z0-9_]*)(?:\[(\d+)\])?$`)
)

// Parse reads the canonical form of a stage instance address,
// `sub-<label>.<stage>` or `sub-<label>.<stage>[<run>]`.
func Parse(rawID string) (*Address, error) {
	if rawID == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}
	subject, rest, ok := strings.Cut(rawID, ".")
	if !ok {
		return nil, fmt.Errorf("identifier %q has no stage segment", rawID)
	}
	if !subjectRegex.MatchString(subject) {
		return nil, fmt.Errorf("invalid subject segment %q: want sub-<label>", subject)
	}

	m := stageRegex.FindStringSubmatch(rest)
	if m == nil {
		return nil, fmt.Errorf("invalid stage segment %q", rest)
	}
	run := -1
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("run index of %q: %w", rawID, err)
		}
		run = n
	}
	addr := ForStage(subject, m[1], run)
	return &addr, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// statically known identifiers.
func MustParse(rawID string) Address {
	addr, err := Parse(rawID)
	if err != nil {
		panic(err)
	}
	return *addr
}
