package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/Brownie44l1/xray-api/internal/interpret"
)

const (
	// DisplayTimeLayout is the timestamp shown inside the report.
	DisplayTimeLayout = "2006-01-02 15:04:05"
	// StampLayout is the timestamp used in report ids and file names.
	StampLayout = "20060102_150405"
)

// DefaultTitle heads every report unless the generator overrides it.
const DefaultTitle = "Chest X-Ray Analysis Report"

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, Helvetica, sans-serif; margin: 40px; color: #1f2933; }
h1 { color: #1d4ed8; }
.result { margin: 24px 0; padding: 16px; border-radius: 8px; background: #f1f5f9; }
.label { font-size: 1.4em; font-weight: bold; }
img { max-width: 480px; border: 1px solid #cbd5e1; }
footer { margin-top: 24px; font-size: 0.85em; color: #64748b; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="result">
<p>Prediction: <span class="label">{{.Label}}</span></p>
<p>Confidence: {{.Confidence}}</p>
</div>
<img src="{{.ImageURL}}" alt="Uploaded chest X-ray">
<footer>Generated on {{.GeneratedAt}}</footer>
</body>
</html>
`))

// Document is everything the HTML report shows.
type Document struct {
	Title    string
	Result   interpret.Result
	ImageURL string
	At       time.Time
}

type view struct {
	Title       string
	Label       string
	Confidence  string
	ImageURL    template.URL
	GeneratedAt string
}

// Render is a pure function of doc.
func Render(doc Document) ([]byte, error) {
	title := doc.Title
	if title == "" {
		title = DefaultTitle
	}

	var buf bytes.Buffer
	err := page.Execute(&buf, view{
		Title:       title,
		Label:       doc.Result.Label,
		Confidence:  FormatPercent(doc.Result.Confidence),
		ImageURL:    template.URL(doc.ImageURL),
		GeneratedAt: doc.At.Format(DisplayTimeLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatPercent renders a [0,1] fraction as "87.50%".
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.2f%%", fraction*100)
}
