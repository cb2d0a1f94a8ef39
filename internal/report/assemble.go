package report

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/fmriflow/internal/ctxlog"
)

// Fragment is one matched file with its first line removed.
type Fragment struct {
	Path    string
	Content string
}

// Element is the fragments of one kind within a group.
type Element struct {
	Name        string
	Title       string
	Description string
	Fragments   []Fragment
}

// Group collects every fragment sharing a Key.
type Group struct {
	Key      string
	Title    string
	Elements []Element
}

func (g *Group) add(e element, f Fragment) {
	for i := range g.Elements {
		if g.Elements[i].Name == e.Name {
			g.Elements[i].Fragments = append(g.Elements[i].Fragments, f)
			return
		}
	}
	g.Elements = append(g.Elements, Element{
		Name:        e.Name,
		Title:       e.Title,
		Description: e.Description,
		Fragments:   []Fragment{f},
	})
}

// SubReport is a configured section with its groups sorted by key.
type SubReport struct {
	Name   string
	Title  string
	Groups []Group
}

func isFragment(path string) bool {
	switch filepath.Ext(path) {
	case ".svg", ".html":
		return true
	}
	return false
}

// dropFirstLine removes everything up to and including the first newline.
// A file with a single line becomes empty.
func dropFirstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[i+1:]
	}
	return ""
}

// Assemble walks root in lexical order and groups matching fragments per
// sub-report. Files whose names carry no subject entity are skipped.
func Assemble(ctx context.Context, root string, cfg Config) ([]SubReport, error) {
	logger := ctxlog.FromContext(ctx)

	compiled, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	groups := make([]map[string]*Group, len(compiled))
	for i := range groups {
		groups[i] = map[string]*Group{}
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isFragment(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var content *string
		for i, sr := range compiled {
			for _, e := range sr.elements {
				if !e.pattern.MatchString(filepath.ToSlash(path)) {
					continue
				}
				key, ok := ParseKey(path)
				if !ok {
					logger.Debug("Skipping fragment without entities.", "path", path)
					return nil
				}
				if content == nil {
					raw, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					s := dropFirstLine(string(raw))
					content = &s
				}
				name := key.String()
				g, ok := groups[i][name]
				if !ok {
					g = &Group{Key: name, Title: key.Title()}
					groups[i][name] = g
				}
				g.add(e, Fragment{Path: path, Content: *content})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]SubReport, len(compiled))
	for i, sr := range compiled {
		out[i] = SubReport{Name: sr.Name, Title: sr.Title}
		keys := make([]string, 0, len(groups[i]))
		for k := range groups[i] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[i].Groups = append(out[i].Groups, *groups[i][k])
		}
	}
	return out, nil
}
