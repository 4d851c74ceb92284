package report

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Brownie44l1/xray-api/internal/interpret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n0000")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	fixedTime = time.Date(2025, 3, 9, 14, 5, 7, 0, time.Local)
)

func TestRender_Content(t *testing.T) {
	html, err := Render(Document{
		Result:   interpret.Result{Label: "Pneumonia", Confidence: 0.875},
		ImageURL: DataURI(jpegMagic),
		At:       fixedTime,
	})
	require.NoError(t, err)

	doc := string(html)
	assert.Contains(t, doc, "<title>"+DefaultTitle+"</title>")
	assert.Contains(t, doc, "Pneumonia")
	assert.Contains(t, doc, "87.50%")
	assert.Contains(t, doc, `src="data:image/jpeg;base64,`+base64.StdEncoding.EncodeToString(jpegMagic)+`"`)
	assert.Contains(t, doc, "2025-03-09 14:05:07")
}

func TestRender_Idempotent(t *testing.T) {
	doc := Document{
		Title:    "Report",
		Result:   interpret.Result{Label: "Normal", Confidence: 0.1},
		ImageURL: DataURI(pngMagic),
		At:       fixedTime,
	}

	a, err := Render(doc)
	require.NoError(t, err)
	b, err := Render(doc)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestRender_EscapesLabel(t *testing.T) {
	html, err := Render(Document{
		Result: interpret.Result{Label: "<script>x</script>", Confidence: 0.5},
		At:     fixedTime,
	})
	require.NoError(t, err)

	assert.NotContains(t, string(html), "<script>x</script>")
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "10.00%", FormatPercent(0.1))
	assert.Equal(t, "99.99%", FormatPercent(0.9999))
	assert.Equal(t, "100.00%", FormatPercent(1))
	assert.Equal(t, "0.00%", FormatPercent(0))
}

func TestDataURI(t *testing.T) {
	assert.True(t, strings.HasPrefix(DataURI(pngMagic), "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(DataURI(jpegMagic), "data:image/jpeg;base64,"))
	assert.True(t, strings.HasPrefix(DataURI([]byte("plain text")), "data:image/jpeg;base64,"))
}

func TestIDAndFileName(t *testing.T) {
	assert.Equal(t, "REP_20250309_140507", ID("20250309_140507", 1))
	assert.Equal(t, "REP_20250309_140507_3", ID("20250309_140507", 3))
	assert.Equal(t, "report_20250309_140507.html", FileName("20250309_140507", 1))
	assert.Equal(t, "report_20250309_140507_2.html", FileName("20250309_140507", 2))
}

func TestGenerate_WritesReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	gen := NewGenerator(dir, "")

	artifact, err := gen.Generate(jpegMagic, interpret.Result{Label: "Normal", Confidence: 0.1}, fixedTime)
	require.NoError(t, err)

	assert.Equal(t, "REP_20250309_140507", artifact.ReportID)
	assert.Equal(t, filepath.Join(dir, "report_20250309_140507.html"), artifact.Path)
	assert.Equal(t, fixedTime, artifact.CreatedAt)

	stored, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, artifact.HTML, stored)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")
}

func TestGenerate_SameSecondGetsSuffix(t *testing.T) {
	gen := NewGenerator(t.TempDir(), "")
	res := interpret.Result{Label: "Pneumonia", Confidence: 0.8}

	first, err := gen.Generate(jpegMagic, res, fixedTime)
	require.NoError(t, err)
	second, err := gen.Generate(jpegMagic, res, fixedTime)
	require.NoError(t, err)

	assert.Equal(t, "REP_20250309_140507", first.ReportID)
	assert.Equal(t, "REP_20250309_140507_2", second.ReportID)
	assert.NotEqual(t, first.Path, second.Path)
}

func TestGenerate_ConcurrentIDsAreUnique(t *testing.T) {
	gen := NewGenerator(t.TempDir(), "")
	res := interpret.Result{Label: "Normal", Confidence: 0.2}

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := gen.Generate(jpegMagic, res, fixedTime)
			if err == nil {
				ids[i] = a.ReportID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGenerate_UnwritableDirectory(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	gen := NewGenerator(filepath.Join(blocker, "reports"), "")
	_, err := gen.Generate(jpegMagic, interpret.Result{Label: "Normal", Confidence: 0.1}, fixedTime)
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	gen := NewGenerator(t.TempDir(), "")
	artifact, err := gen.Generate(jpegMagic, interpret.Result{Label: "Normal", Confidence: 0.1}, fixedTime)
	require.NoError(t, err)

	require.NoError(t, gen.Remove(artifact))
	_, err = os.Stat(artifact.Path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, gen.Remove(artifact))
	assert.NoError(t, gen.Remove(nil))
}
