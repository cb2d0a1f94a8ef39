package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/vk/fmriflow/internal/ctxlog"
)

// Filter narrows collection to specific entities. Empty fields match all.
type Filter struct {
	Session string
	Run     string
	Task    string
}

// Session pairs a session label ("" for datasets without sessions) with
// its inventory.
type Session struct {
	ID        string
	Inventory *Inventory
}

// Collector produces per-session inventories for a subject.
type Collector interface {
	Collect(ctx context.Context, subject string, filter Filter) ([]Session, error)
}

// BIDSCollector walks a BIDS-layout dataset on disk. Results are memoised
// so repeated lookups for the same subject do not rescan the tree.
type BIDSCollector struct {
	root  string
	cache *cache.Cache
}

// NewBIDSCollector creates a collector rooted at a dataset directory.
func NewBIDSCollector(root string) *BIDSCollector {
	return &BIDSCollector{
		root:  root,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

var (
	niftiRe   = regexp.MustCompile(`\.nii(\.gz)?$`)
	entityRe  = regexp.MustCompile(`_(ses|task|acq|rec|run)-([a-zA-Z0-9]+)`)
	suffixRe  = regexp.MustCompile(`_([a-zA-Z0-9]+)\.nii(\.gz)?$`)
	sessionRe = regexp.MustCompile(`^ses-[a-zA-Z0-9]+$`)
)

// SubjectLabel normalises "01" and "sub-01" to "sub-01".
func SubjectLabel(subject string) string {
	if strings.HasPrefix(subject, "sub-") {
		return subject
	}
	return "sub-" + subject
}

// Subjects lists the subject labels present under root, without the prefix.
func Subjects(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "sub-") {
			out = append(out, strings.TrimPrefix(e.Name(), "sub-"))
		}
	}
	return out, nil
}

// Collect implements Collector.
func (c *BIDSCollector) Collect(ctx context.Context, subject string, filter Filter) ([]Session, error) {
	logger := ctxlog.FromContext(ctx)
	label := SubjectLabel(subject)
	key := fmt.Sprintf("%s|%s|%+v", c.root, label, filter)
	if cached, ok := c.cache.Get(key); ok {
		logger.Debug("Inventory served from cache.", "subject", label)
		return cloneSessions(cached.([]Session)), nil
	}

	subjectDir := filepath.Join(c.root, label)
	info, err := os.Stat(subjectDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("subject directory not found: %s", subjectDir)
	}

	sessionDirs, err := c.sessionDirs(subjectDir, filter.Session)
	if err != nil {
		return nil, err
	}

	var sessions []Session
	for _, sd := range sessionDirs {
		inv, err := c.collectSession(sd.dir, filter)
		if err != nil {
			return nil, err
		}
		logger.Debug("Collected session inventory.",
			"subject", label, "session", sd.id,
			"t1w", inv.Len(T1w), "func", inv.Len(Func), "sbref", inv.Len(SBRef), "fmap", inv.Len(Fieldmap))
		sessions = append(sessions, Session{ID: sd.id, Inventory: inv})
	}

	c.cache.Set(key, cloneSessions(sessions), cache.DefaultExpiration)
	return sessions, nil
}

// cloneSessions keeps callers from mutating cached inventories.
func cloneSessions(in []Session) []Session {
	out := make([]Session, len(in))
	for i, s := range in {
		out[i] = Session{ID: s.ID, Inventory: s.Inventory.Clone()}
	}
	return out
}

type sessionDir struct {
	id  string
	dir string
}

func (c *BIDSCollector) sessionDirs(subjectDir, only string) ([]sessionDir, error) {
	entries, err := os.ReadDir(subjectDir)
	if err != nil {
		return nil, err
	}
	var out []sessionDir
	for _, e := range entries {
		if !e.IsDir() || !sessionRe.MatchString(e.Name()) {
			continue
		}
		id := strings.TrimPrefix(e.Name(), "ses-")
		if only != "" && id != only {
			continue
		}
		out = append(out, sessionDir{id: id, dir: filepath.Join(subjectDir, e.Name())})
	}
	if len(out) == 0 {
		if only != "" {
			return nil, fmt.Errorf("session %q not found in %s", only, subjectDir)
		}
		out = append(out, sessionDir{dir: subjectDir})
	}
	return out, nil
}

func (c *BIDSCollector) collectSession(dir string, filter Filter) (*Inventory, error) {
	inv := New(nil)
	var funcs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !niftiRe.MatchString(name) {
			return nil
		}
		modality := filepath.Base(filepath.Dir(path))
		suffix := ""
		if m := suffixRe.FindStringSubmatch(name); m != nil {
			suffix = m[1]
		}
		switch {
		case modality == "anat" && suffix == "T1w":
			inv.Add(T1w, path)
		case modality == "func" && suffix == "sbref":
			inv.Add(SBRef, path)
		case modality == "func" && suffix == "bold":
			if matchesFilter(name, filter) {
				funcs = append(funcs, path)
			}
		case modality == "fmap" && IsFieldmapFile(name):
			inv.Add(Fieldmap, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	sort.SliceStable(funcs, func(i, j int) bool {
		return runOrderKey(filepath.Base(funcs[i])) < runOrderKey(filepath.Base(funcs[j]))
	})
	inv.Add(Func, funcs...)
	return inv, nil
}

func entities(name string) map[string]string {
	out := map[string]string{}
	for _, m := range entityRe.FindAllStringSubmatch(name, -1) {
		out[m[1]] = m[2]
	}
	return out
}

func matchesFilter(name string, f Filter) bool {
	ents := entities(name)
	if f.Run != "" && strings.TrimLeft(ents["run"], "0") != strings.TrimLeft(f.Run, "0") {
		return false
	}
	if f.Task != "" && ents["task"] != f.Task {
		return false
	}
	return true
}

// runOrderKey orders functional runs by session, run, acquisition, then task.
func runOrderKey(name string) string {
	ents := entities(name)
	return fmt.Sprintf("%s|%08s|%s|%s|%s", ents["ses"], ents["run"], ents["acq"], ents["task"], name)
}
