// Package report builds and stores the HTML report for a prediction.
package report

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Brownie44l1/xray-api/internal/interpret"
)

// maxSuffix bounds how many reports may share one second.
const maxSuffix = 1000

// Artifact is a stored report.
type Artifact struct {
	ReportID  string
	ImageURL  string
	HTML      []byte
	Path      string
	CreatedAt time.Time
}

// Generator writes reports into a single directory.
type Generator struct {
	dir   string
	title string
}

func NewGenerator(dir, title string) *Generator {
	return &Generator{dir: dir, title: title}
}

// Dir is the reports directory.
func (g *Generator) Dir() string {
	return g.dir
}

// Generate renders and stores the report for res. at is the single request
// timestamp; the id, file name and displayed time all derive from it. When a
// report for the same second already exists, a numeric suffix is added.
func (g *Generator) Generate(image []byte, res interpret.Result, at time.Time) (*Artifact, error) {
	imageURL := DataURI(image)
	html, err := Render(Document{
		Title:    g.title,
		Result:   res,
		ImageURL: imageURL,
		At:       at,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	tmp, err := writeTemp(g.dir, html)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp)

	stamp := at.Format(StampLayout)
	for n := 1; n <= maxSuffix; n++ {
		path := filepath.Join(g.dir, FileName(stamp, n))
		err := os.Link(tmp, path)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store report: %w", err)
		}
		return &Artifact{
			ReportID:  ID(stamp, n),
			ImageURL:  imageURL,
			HTML:      html,
			Path:      path,
			CreatedAt: at,
		}, nil
	}

	return nil, fmt.Errorf("failed to store report: %d reports already exist for %s", maxSuffix, stamp)
}

// Remove deletes a stored report.
func (g *Generator) Remove(a *Artifact) error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove report %s: %w", a.ReportID, err)
	}
	return nil
}

// writeTemp writes data to a hidden file in dir so the final name only ever
// points at complete content.
func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return name, nil
}

// ID is REP_<stamp>, with _<n> appended for n > 1.
func ID(stamp string, n int) string {
	return "REP_" + stamp + suffix(n)
}

// FileName is report_<stamp>.html, with _<n> before the extension for n > 1.
func FileName(stamp string, n int) string {
	return "report_" + stamp + suffix(n) + ".html"
}

func suffix(n int) string {
	if n <= 1 {
		return ""
	}
	return fmt.Sprintf("_%d", n)
}

// DataURI embeds the original bytes without re-encoding them. The media type
// is sniffed and defaults to image/jpeg.
func DataURI(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}
