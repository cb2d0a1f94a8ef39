package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/vk/fmriflow/internal/ctxlog"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Fragments are produced by our own stages, so their markup is kept as is.
var page = template.Must(template.New("subject.html.tmpl").
	Funcs(template.FuncMap{"trusted": func(s string) template.HTML { return template.HTML(s) }}).
	ParseFS(templateFS, "templates/subject.html.tmpl"))

var subjectDir = regexp.MustCompile(`^sub-[a-zA-Z0-9]+$`)

// Render writes the page of one subject.
func Render(w io.Writer, subject string, reports []SubReport) error {
	return page.Execute(w, struct {
		Subject    string
		SubReports []SubReport
	}{subject, reports})
}

// ReportsDir is where stages drop fragments, one directory per subject.
func ReportsDir(outDir string) string {
	return filepath.Join(outDir, "reports")
}

// RunReports renders <outDir>/sub-XX.html for every reports/sub-XX
// directory and returns the written paths. A missing reports directory is
// not an error.
func RunReports(ctx context.Context, outDir string, cfg Config) ([]string, error) {
	logger := ctxlog.FromContext(ctx)

	entries, err := os.ReadDir(ReportsDir(outDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var written []string
	for _, entry := range entries {
		if !entry.IsDir() || !subjectDir.MatchString(entry.Name()) {
			continue
		}
		subject := entry.Name()
		reports, err := Assemble(ctx, filepath.Join(ReportsDir(outDir), subject), cfg)
		if err != nil {
			return written, fmt.Errorf("%s: %w", subject, err)
		}

		var buf bytes.Buffer
		if err := Render(&buf, subject, reports); err != nil {
			return written, fmt.Errorf("%s: %w", subject, err)
		}
		out := filepath.Join(outDir, subject+".html")
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return written, err
		}
		logger.Info("Report written.", "subject", subject, "path", out)
		written = append(written, out)
	}
	return written, nil
}
