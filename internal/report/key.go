package report

import (
	"path/filepath"
	"regexp"
	"strings"
)

var entityPattern = regexp.MustCompile(
	`^sub-([a-zA-Z0-9]+)(_ses-([a-zA-Z0-9]+))?(_task-([a-zA-Z0-9]+))?` +
		`(_acq-([a-zA-Z0-9]+))?(_rec-([a-zA-Z0-9]+))?(_run-([a-zA-Z0-9]+))?`)

// Key holds the optional entities of a fragment file name. The subject is
// not part of the key.
type Key struct {
	Subject        string
	Session        string
	Task           string
	Acquisition    string
	Reconstruction string
	Run            string
}

// ParseKey extracts entities from the base name of path. ok is false when
// the name does not start with a subject entity.
func ParseKey(path string) (Key, bool) {
	m := entityPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return Key{}, false
	}
	return Key{
		Subject:        m[1],
		Session:        m[3],
		Task:           m[5],
		Acquisition:    m[7],
		Reconstruction: m[9],
		Run:            m[11],
	}, true
}

type entity struct {
	value, prefix, label string
}

func (k Key) entities() []entity {
	return []entity{
		{k.Session, "ses", "Session"},
		{k.Task, "task", "Task"},
		{k.Acquisition, "acq", "Acquisition"},
		{k.Reconstruction, "rec", "Reconstruction"},
		{k.Run, "run", "Run"},
	}
}

// String is the group key, e.g. "_ses-1_task-rest_run-1". Groups sort by it.
func (k Key) String() string {
	var sb strings.Builder
	for _, e := range k.entities() {
		if e.value != "" {
			sb.WriteString("_" + e.prefix + "-" + e.value)
		}
	}
	return sb.String()
}

// Title is the human readable form, e.g. "Session: 1 Task: rest Run: 1".
func (k Key) Title() string {
	var parts []string
	for _, e := range k.entities() {
		if e.value != "" {
			parts = append(parts, e.label+": "+e.value)
		}
	}
	return strings.Join(parts, " ")
}
